package feature

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced by a catalog, layer or native store.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindNativeCall means the external store rejected an operation.
	KindNativeCall
	// KindSchema means field metadata was malformed or the format version
	// was not recognized.
	KindSchema
	// KindBounds means a layer index was out of range.
	KindBounds
	// KindDecode means a native value could not be converted to its
	// declared field type.
	KindDecode
	// KindUnsupported means the driver does not offer the capability.
	KindUnsupported
	// KindNotFound means a record or container does not exist.
	KindNotFound
	// KindState means the object is not in a state that permits the call.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindNativeCall:
		return "native_call"
	case KindSchema:
		return "schema"
	case KindBounds:
		return "bounds"
	case KindDecode:
		return "decode"
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed and
// Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error with a formatted operation description.
func Errorf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
