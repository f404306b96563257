// Package errs defines the small set of error kinds the client's state
// machine branches on, distinct from the free-form wrapped errors returned
// by individual driver calls.
package errs

import "fmt"

// Kind classifies an Error for control-flow purposes. Execute checks Kind,
// not message text, to decide whether to retry, wait, or give up.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// InvalidArg indicates a caller passed malformed input.
	InvalidArg
	// Config indicates a client misconfiguration (no signer, no chain, ...).
	Config
	// NotFound indicates a requested chain, node, or cache entry is absent.
	NotFound
	// InvalidData indicates a response failed to parse or verify.
	InvalidData
	// RPC indicates the node returned a JSON-RPC error object.
	RPC
	// NotSupported indicates the method/verification combination has no
	// registered handler.
	NotSupported
	// OutOfMemory indicates a hard resource limit was hit.
	OutOfMemory
	// Limit indicates a safety cap (retry count, sub-context depth) was hit.
	Limit
	// Waiting indicates the context has outstanding sub-contexts and is not
	// an error at all — Execute uses it to signal "call me again".
	Waiting
	// Version indicates a wire-format version mismatch.
	Version
	// Ignore indicates an error that should not fail the whole batch (an
	// allowed-to-fail request ran out of nodes).
	Ignore
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "invalid-arg"
	case Config:
		return "config"
	case NotFound:
		return "not-found"
	case InvalidData:
		return "invalid-data"
	case RPC:
		return "rpc"
	case NotSupported:
		return "not-supported"
	case OutOfMemory:
		return "out-of-memory"
	case Limit:
		return "limit"
	case Waiting:
		return "waiting"
	case Version:
		return "version"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Error is the client's typed error: a Kind plus a human-readable message,
// optionally wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
