package localstore

import "errors"

// Sentinel errors.
//
// A miss is a valid outcome for this layer: Get returns ErrNotFound, the
// collection operations return empty slices. Only true I/O failures
// surface as other errors.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned by operations that cannot degrade
	// silently when the store could not be opened.
	ErrUnavailable = errors.New("local store unavailable")
)
