package remote

import "errors"

// Sentinel errors returned by the catalog client.
var (
	// ErrNotFound indicates a 404 response or an empty entity body.
	ErrNotFound = errors.New("not found upstream")

	// ErrUnreachable indicates the request never produced a response
	// (connection refused, timeout, offline).
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrBadRequest indicates the server rejected the request payload.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("upstream server error")
)
