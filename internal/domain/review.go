package domain

import "time"

// Review is a user review of a restaurant.
//
// A review is conceptually keyed by the server ID once persisted remotely.
// Before the server acknowledges it, it exists only locally under the
// surrogate LocalID assigned by the local store. A review with a zero ID is
// in the pending-sync state; once synced the same LocalID record carries
// both keys.
type Review struct {
	// LocalID is the store-assigned surrogate key, monotonically increasing.
	LocalID int64 `json:"id_local,omitempty"`
	// ID is the server key. Zero until the server confirms the review.
	ID           int64     `json:"id,omitempty"`
	RestaurantID int64     `json:"restaurant_id"`
	Name         string    `json:"name"`
	Rating       int       `json:"rating"`
	Comments     string    `json:"comments"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Pending reports whether this review is still awaiting server confirmation.
// The UI renders an offline marker driven by exactly this predicate.
func (r *Review) Pending() bool {
	return r.ID == 0
}

// PendingReview is a sync queue entry: an offline-created review together
// with its background-sync registration tag. Entries are persisted in the
// local store so a queued review survives a daemon restart; the payload is
// never held only in worker memory.
type PendingReview struct {
	Tag        string    `json:"tag"`
	Review     Review    `json:"review"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}
