package call

import "errors"

var (
	// ErrCallInProgress rejects a second call while one is active.
	ErrCallInProgress = errors.New("a call is already in progress")
	// ErrTerminal rejects operations on a finished call.
	ErrTerminal = errors.New("the call is already over")
	// ErrNoCall marks an operation with an unknown call id.
	ErrNoCall = errors.New("no such call")
	// ErrNegotiation wraps description/candidate application failures.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrMedia wraps media engine acquisition and connectivity failures.
	ErrMedia = errors.New("media engine failed")
	// ErrBadPhase rejects an operation invalid for the current phase.
	ErrBadPhase = errors.New("wrong call phase")
)
