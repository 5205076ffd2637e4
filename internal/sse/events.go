// Package sse implements the Server-Sent Events channel between the daemon
// and open page tabs. The daemon pushes sync outcomes to pages so a review
// posted in the background shows up without a reload.
package sse

import "time"

// EventType represents the type of SSE event.
type EventType string

const (
	// EventPostSuccess announces that a queued review reached the server.
	// Delivered only to visible tabs; hidden tabs re-read from the store
	// when they come back to the foreground.
	EventPostSuccess EventType = "post_success"

	// EventWorkerWaiting announces that a new asset generation is installed
	// and waiting for activation.
	EventWorkerWaiting EventType = "worker.waiting"

	// EventHeartbeat is the connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message pushed to connected pages.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Type      EventType `json:"type"`
}

// PostSuccessData is the payload of a post_success event.
type PostSuccessData struct {
	LocalID      int64 `json:"id_local"`
	ReviewID     int64 `json:"review_id"`
	RestaurantID int64 `json:"restaurant_id"`
}

// NewPostSuccessEvent builds the event announcing a completed review sync.
func NewPostSuccessEvent(localID, reviewID, restaurantID int64) Event {
	return Event{
		Type:      EventPostSuccess,
		Timestamp: time.Now(),
		Data: PostSuccessData{
			LocalID:      localID,
			ReviewID:     reviewID,
			RestaurantID: restaurantID,
		},
	}
}

// NewWorkerWaitingEvent builds the event announcing a staged asset update.
func NewWorkerWaitingEvent(version int) Event {
	return Event{
		Type:      EventWorkerWaiting,
		Timestamp: time.Now(),
		Data:      map[string]int{"version": version},
	}
}

// NewHeartbeatEvent builds a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	}
}
