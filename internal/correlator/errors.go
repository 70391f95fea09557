package correlator

import "errors"

// Sentinel errors returned by the correlator.
var (
	// ErrAlreadyRunning indicates Start was called on a correlator that
	// has not been stopped.
	ErrAlreadyRunning = errors.New("correlator: already running")

	// ErrRetriesExhausted indicates the bounded reconnect budget was
	// spent without establishing a session.
	ErrRetriesExhausted = errors.New("correlator: reconnect retry budget exhausted")
)
