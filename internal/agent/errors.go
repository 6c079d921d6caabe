package agent

import "errors"

// Agent errors. Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidCommand rejects a malformed command topic or payload.
	ErrInvalidCommand = errors.New("agent: invalid command")

	// ErrNotConnected rejects commands received while no session is live.
	ErrNotConnected = errors.New("agent: not connected to broker")

	// ErrQueueFull rejects commands when a display's queue is at capacity.
	ErrQueueFull = errors.New("agent: command queue full")

	// ErrShuttingDown rejects commands once shutdown has begun.
	ErrShuttingDown = errors.New("agent: shutting down")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("agent: already running")
)
