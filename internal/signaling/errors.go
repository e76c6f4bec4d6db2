package signaling

import "fmt"

// ProtocolError signals a violation of the state machine or framing
// contract: wrong envelope, wrong source/destination, a CSN regression, or
// a message type that is not valid for the current phase. It always closes
// the connection with CloseProtocolError.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "signaling: protocol error: " + e.Reason
}

// InternalError signals an invariant violation in local state, such as a
// missing session key where one is required. It closes the connection with
// CloseInternalError rather than CloseProtocolError, since the fault is
// ours, not the peer's.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return "signaling: internal error: " + e.Reason
}

// ConnectionError wraps a transport-layer failure to connect or send. It is
// surfaced to the application rather than translated to a close code — by
// the time it occurs, there may be no connection left to close.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signaling: connection error: %s: %v", e.Reason, e.Err)
	}
	return "signaling: connection error: " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrConfigConflict is returned when a responder is configured with both a
// trusted initiator key and untrusted (public key + auth token) material,
// per spec.md E3 — exactly one of the two input shapes is valid.
type ErrConfigConflict struct {
	Reason string
}

func (e *ErrConfigConflict) Error() string {
	return "signaling: configuration conflict: " + e.Reason
}

// NoSharedTaskError is returned when an initiator's and a responder's task
// lists have no entry in common during the auth exchange.
type NoSharedTaskError struct {
	Reason string
}

func (e *NoSharedTaskError) Error() string {
	return "signaling: no shared task: " + e.Reason
}

// closeCodeFor maps an error produced while handling a frame to the close
// code reset_connection should report, per spec.md §7.
func closeCodeFor(err error) CloseCode {
	switch err.(type) {
	case *InternalError:
		return CloseInternalError
	case *NoSharedTaskError:
		return CloseNoSharedTask
	default:
		return CloseProtocolError
	}
}
