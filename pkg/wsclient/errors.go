package wsclient

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrQueueClosed       = errors.New("queue closed")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrAlreadyStarted    = errors.New("client already started")

	ErrRemoteClosed     = errors.New("connection closed by remote")
	ErrHeartbeatTimeout = errors.New("connection considered dead: no inbound traffic within heartbeat timeout")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// NegotiationKind classifies a failed endpoint negotiation.
type NegotiationKind int

const (
	// KindTransport covers network failures, non-2xx responses and
	// undecodable bodies.
	KindTransport NegotiationKind = iota
	// KindServer is a server-side fault such as "system busy".
	KindServer
	// KindClient is a rejected request: bad credentials, forbidden app,
	// connection limit reached.
	KindClient
	// KindNoEndpoint means the server answered without a connection URL.
	KindNoEndpoint
)

func (k NegotiationKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindNoEndpoint:
		return "no_endpoint"
	default:
		return "unknown"
	}
}

// NegotiationError is returned by Negotiator.Negotiate.
type NegotiationError struct {
	Kind NegotiationKind
	Code int
	Msg  string
	Err  error
}

func (e *NegotiationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("negotiate endpoint (%s): %v", e.Kind, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("negotiate endpoint (%s): code %d: %s", e.Kind, e.Code, e.Msg)
	default:
		return fmt.Sprintf("negotiate endpoint (%s): %s", e.Kind, e.Msg)
	}
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether trying again later can succeed without a
// configuration change.
func (e *NegotiationError) Retryable() bool {
	return e.Kind != KindClient
}

// Cause identifies why a session ended.
type Cause int

const (
	CauseConnect Cause = iota
	CauseRead
	CauseWrite
	CauseRemoteClosed
	CauseHeartbeatTimeout
	CauseMalformedFrame
)

func (c Cause) String() string {
	switch c {
	case CauseConnect:
		return "connect"
	case CauseRead:
		return "read"
	case CauseWrite:
		return "write"
	case CauseRemoteClosed:
		return "remote_closed"
	case CauseHeartbeatTimeout:
		return "heartbeat_timeout"
	case CauseMalformedFrame:
		return "malformed_frame"
	default:
		return "unknown"
	}
}

// SessionError is the terminal error of a session. Code and Reason are set
// when the remote sent a close frame.
type SessionError struct {
	Cause  Cause
	Code   int
	Reason string
	Err    error
}

func (e *SessionError) Error() string {
	msg := "session " + e.Cause.String()
	if e.Cause == CauseRemoteClosed {
		msg = fmt.Sprintf("%s (code %d", msg, e.Code)
		if e.Reason != "" {
			msg += ", " + e.Reason
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error's cause.
func (e *SessionError) Is(target error) bool {
	switch target {
	case ErrRemoteClosed:
		return e.Cause == CauseRemoteClosed
	case ErrHeartbeatTimeout:
		return e.Cause == CauseHeartbeatTimeout
	case ErrMalformedFrame:
		return e.Cause == CauseMalformedFrame
	}
	return false
}
