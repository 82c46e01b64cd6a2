// Package errs implements six error kinds as one concrete type, wrapped
// with github.com/pkg/errors stack context at the point of creation so
// each layer (endpoint, parser, channel) can expose a translated outcome
// upward instead of leaking its internal cause.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for the purposes of propagation policy.
// Each layer handles its own class and exposes only the translated Kind to
// its caller.
type Kind int

const (
	// Transport covers connect/read/write failures, idle timeouts, and
	// unexpected EOF mid-message.
	Transport Kind = iota
	// Protocol covers malformed HTTP, oversized headers/bodies, and framing
	// disagreements.
	Protocol
	// Handler covers exceptions escaping user handler code.
	Handler
	// Resource covers out-of-memory, EMFILE/ENFILE, and temp-file I/O errors.
	Resource
	// VM covers Flow link-time rejections: type mismatches, bad constants,
	// native signature mismatches.
	VM
	// Cancelled covers explicit stop or reactor shutdown.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Handler:
		return "handler"
	case Resource:
		return "resource"
	case VM:
		return "vm"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single concrete error type crossing component boundaries.
// Status is the HTTP status a Protocol/Resource/Handler error should be
// rendered as when no response has started yet; it is 0 for kinds that never
// map onto a wire response (Transport, Cancelled).
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the innermost wrapped error, mirroring errors.Cause for
// callers that only have an *Error in hand.
func (e *Error) Cause() error {
	if e.cause == nil {
		return e
	}
	return errors.Cause(e.cause)
}

// New creates a Kind-classified error, capturing a stack trace via
// github.com/pkg/errors so logs retain the call site that first observed the
// fault.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message, cause: errors.New(message)}
}

// Wrap attaches kind/status classification to an existing error, preserving
// its cause chain.
func Wrap(kind Kind, status int, message string, cause error) *Error {
	if cause == nil {
		return New(kind, status, message)
	}
	return &Error{Kind: kind, Status: status, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// Transport-, protocol-, and resource-level sentinels used across endpoint,
// parser, and connector code so callers can classify without allocating.
var (
	ErrWouldBlock  = New(Transport, 0, "operation would block")
	ErrClosed      = New(Transport, 0, "endpoint closed")
	ErrIdleTimeout = New(Transport, 0, "idle timeout")
	ErrCancelled   = New(Cancelled, 0, "operation cancelled")

	ErrURITooLong         = New(Protocol, 414, "request-uri too long")
	ErrHeaderFieldsTooBig = New(Protocol, 431, "request header fields too large")
	ErrBadFraming         = New(Protocol, 400, "content-length and transfer-encoding both present")
	ErrObsFold            = New(Protocol, 400, "obsolete line folding in header field")

	ErrTooManyFDs = New(Resource, 503, "too many open files")
)
