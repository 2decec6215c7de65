package host

import "errors"

// ErrSessionNotFound is returned by operations that require an existing
// session and refuse to create one (close, trace stop).
var ErrSessionNotFound = errors.New("host: session not found")

// ErrUnknownAction is returned by the dispatcher for action names outside
// the surface.
var ErrUnknownAction = errors.New("host: unknown action")

// ErrShuttingDown is returned once Close has begun.
var ErrShuttingDown = errors.New("host: shutting down")
