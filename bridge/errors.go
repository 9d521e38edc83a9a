package bridge

import (
	"errors"
	"fmt"
	"net"
)

// Kind is the failure taxonomy every backend maps its protocol-specific
// faults into. Callers never see raw protocol status codes.
type Kind int

const (
	// KindConnection covers unreachable, timed-out or reset transports, and
	// any operation attempted on a session that is not connected.
	KindConnection Kind = iota + 1
	// KindAuth means the server rejected the credential. Distinct from
	// KindConnection so callers can tell "wrong password" from
	// "host unreachable". Never retried automatically.
	KindAuth
	// KindNotFound means the path does not exist on the host.
	KindNotFound
	// KindPermission means the server denied the operation.
	KindPermission
	// KindProtocol wraps a malformed or unexpected protocol exchange.
	KindProtocol
	// KindIO is a local filesystem or mid-stream failure.
	KindIO
	// KindCancelled means the operation was cancelled cooperatively.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindAuth:
		return "authentication error"
	case KindNotFound:
		return "not found"
	case KindPermission:
		return "permission denied"
	case KindProtocol:
		return "protocol error"
	case KindIO:
		return "i/o error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Error is the uniform error type surfaced by every bridge operation.
type Error struct {
	Kind     Kind
	Path     string // offending path, when there is one
	TimedOut bool   // set on KindConnection when a deadline expired
	Err      error  // underlying cause, possibly nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.TimedOut {
		msg += " (timed out)"
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a taxonomy error wrapping cause.
func NewError(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Err: cause}
}

func connectionError(path string, cause error) *Error {
	e := &Error{Kind: KindConnection, Path: path, Err: cause}
	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		e.TimedOut = true
	}
	return e
}

func notConnectedError() *Error {
	return &Error{Kind: KindConnection, Err: errors.New("session is not connected")}
}

// KindOf extracts the taxonomy kind from err, or 0 if err is not a bridge error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
