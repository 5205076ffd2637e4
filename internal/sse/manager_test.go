package sse

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(slog.New(slog.DiscardHandler))
}

func TestBroadcast_DeliversToAllClients(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Connect(true)
	require.NoError(t, err)
	b, err := m.Connect(true)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.broadcast(NewHeartbeatEvent())

	for _, client := range []*Client{a, b} {
		select {
		case event := <-client.EventChan:
			assert.Equal(t, EventHeartbeat, event.Type)
		default:
			t.Fatalf("client %s received nothing", client.ID)
		}
	}
}

func TestBroadcast_PostSuccessSkipsHiddenTabs(t *testing.T) {
	m := newTestManager(t)

	visible, err := m.Connect(true)
	require.NoError(t, err)
	hidden, err := m.Connect(false)
	require.NoError(t, err)

	m.broadcast(NewPostSuccessEvent(1, 501, 5))

	select {
	case event := <-visible.EventChan:
		assert.Equal(t, EventPostSuccess, event.Type)
		data, ok := event.Data.(PostSuccessData)
		require.True(t, ok)
		assert.Equal(t, int64(501), data.ReviewID)
	default:
		t.Fatal("visible tab received nothing")
	}

	select {
	case event := <-hidden.EventChan:
		t.Fatalf("hidden tab received %s", event.Type)
	default:
	}

	// Heartbeats still reach hidden tabs.
	m.broadcast(NewHeartbeatEvent())
	select {
	case event := <-hidden.EventChan:
		assert.Equal(t, EventHeartbeat, event.Type)
	default:
		t.Fatal("hidden tab missed heartbeat")
	}
}

func TestSetVisible_ChangesFiltering(t *testing.T) {
	m := newTestManager(t)

	client, err := m.Connect(false)
	require.NoError(t, err)

	m.SetVisible(client.ID, true)
	m.broadcast(NewPostSuccessEvent(1, 501, 5))

	select {
	case event := <-client.EventChan:
		assert.Equal(t, EventPostSuccess, event.Type)
	default:
		t.Fatal("foregrounded tab received nothing")
	}
}

func TestBroadcast_SlowClientDropsEvent(t *testing.T) {
	m := newTestManager(t)

	client, err := m.Connect(true)
	require.NoError(t, err)

	// Fill the client buffer.
	for range cap(client.EventChan) {
		m.broadcast(NewHeartbeatEvent())
	}

	// One more must not block the broadcaster.
	done := make(chan struct{})
	go func() {
		m.broadcast(NewHeartbeatEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestShutdown_NeverBroadcastsZeroEvent(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	client, err := m.Connect(true)
	require.NoError(t, err)

	m.Emit(NewHeartbeatEvent())
	select {
	case event := <-client.EventChan:
		require.Equal(t, EventHeartbeat, event.Type)
	case <-time.After(time.Second):
		t.Fatal("emitted event never delivered")
	}

	require.NoError(t, m.Shutdown(context.Background()))

	// Closing the event channel must stop the loop, not feed it
	// zero-value events to broadcast.
	for {
		select {
		case event := <-client.EventChan:
			assert.NotEmpty(t, event.Type, "broadcast of a zero-value event")
		case <-client.Done:
			return
		case <-time.After(time.Second):
			t.Fatal("client never released on shutdown")
		}
	}
}

func TestDisconnect(t *testing.T) {
	m := newTestManager(t)

	client, err := m.Connect(true)
	require.NoError(t, err)
	m.Disconnect(client.ID)

	assert.Zero(t, m.ClientCount())
	select {
	case <-client.Done:
	default:
		t.Fatal("Done not closed on disconnect")
	}

	// Disconnecting twice is not an error.
	m.Disconnect(client.ID)
}
