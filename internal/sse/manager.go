package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/id"
)

// Client represents a connected page tab.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// Visible mirrors the tab's visibility state. Events that only make
	// sense on a rendered page (post_success) are filtered on it.
	Visible bool
}

// Manager manages page connections and broadcasts events.
type Manager struct {
	clients           map[string]*Client
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a new SSE manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients:           make(map[string]*Client),
		events:            make(chan Event, 256),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start begins the broadcast loop. Call once at startup in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	heartbeat := time.NewTicker(m.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				// Shutdown closed the channel; the drain there finishes
				// whatever is still buffered.
				m.logger.Info("SSE manager stopping")
				return
			}
			m.broadcast(event)

		case <-heartbeat.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, drains what is queued, and closes all
// client connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range m.events {
			m.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timeout, some events may be lost")
	}

	m.wg.Wait()
	m.closeAllClients()
	return nil
}

// Emit queues an event for broadcast. Safe to call from any goroutine;
// events emitted after shutdown are dropped.
func (m *Manager) Emit(event Event) {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Warn("SSE event queue full, dropping event",
			"event_type", string(event.Type))
	}
}

// Connect registers a new page tab and returns its client handle.
func (m *Manager) Connect(visible bool) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, fmt.Errorf("generate client id: %w", err)
	}

	client := &Client{
		ID:          clientID,
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, 32),
		Done:        make(chan struct{}),
		Visible:     visible,
	}

	m.mu.Lock()
	m.clients[clientID] = client
	m.mu.Unlock()

	m.logger.Debug("page connected",
		"client_id", clientID,
		"visible", visible,
	)
	return client, nil
}

// Disconnect removes a client and releases its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	m.mu.Unlock()

	if ok {
		close(client.Done)
		m.logger.Debug("page disconnected", "client_id", clientID)
	}
}

// SetVisible updates a client's visibility state.
func (m *Manager) SetVisible(clientID string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[clientID]; ok {
		client.Visible = visible
	}
}

// ClientCount returns the number of connected pages.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// broadcast delivers one event to connected clients. post_success only goes
// to visible tabs. Sends are non-blocking; a stuck client loses the event
// rather than stalling everyone else.
func (m *Manager) broadcast(event Event) {
	var delivered, dropped, filtered int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if event.Type == EventPostSuccess && !client.Visible {
			filtered++
			continue
		}

		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				"client_id", client.ID,
				"event_type", string(event.Type))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			"event_type", string(event.Type),
			"delivered", delivered,
			"filtered", filtered,
			"dropped", dropped,
		)
	}
}

// closeAllClients signals every connected client to stop.
func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for clientID, client := range m.clients {
		close(client.Done)
		delete(m.clients, clientID)
	}
}
