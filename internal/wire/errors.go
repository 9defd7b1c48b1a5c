// Package wire defines the typed messages, status codes and wire codecs
// that cross the agency's public envelope boundary, and the error
// taxonomy shared by every actor.
package wire

import "fmt"

// Kind is one of the error taxonomy entries from the core's error
// handling design: InvalidStructure, InvalidKey, NotFound, Conflict,
// Transport, Storage. Kind is never used for control flow outside error
// reporting; handlers still return plain Go errors wrapping a *Error.
type Kind int

const (
	_ Kind = iota
	InvalidStructure
	InvalidKey
	NotFound
	Conflict
	Transport
	Storage
)

func (k Kind) String() string {
	switch k {
	case InvalidStructure:
		return "InvalidStructure"
	case InvalidKey:
		return "InvalidKey"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Transport:
		return "Transport"
	case Storage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// Error is the single error type every actor handler surfaces to its
// caller. It carries a Kind so callers (and tests) can assert on the
// taxonomy without parsing message strings.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "CreateAgent"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether the first *Error in err's Unwrap chain has
// Kind k.
func IsKind(err error, k Kind) bool {
	var we *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			we = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return we != nil && we.Kind == k
}

func Errf(kind Kind, op string, cause error, format string, args ...any) error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	if cause != nil {
		if err != nil {
			err = fmt.Errorf("%w: %v", err, cause)
		} else {
			err = cause
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
