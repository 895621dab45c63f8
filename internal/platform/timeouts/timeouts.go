// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Fanout caps one detached notification fanout after battle creation.
const Fanout = 30 * time.Second

// Sweep caps a single expiry sweep pass.
const Sweep = 45 * time.Second
