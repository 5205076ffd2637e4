// Package providers contains dependency injection providers for the
// DineAtlas client daemon.
package providers

import "time"

// shutdownTimeout bounds graceful shutdown of each component.
const shutdownTimeout = 10 * time.Second
