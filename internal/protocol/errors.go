package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol-tier failure. Every kind is fatal to the
// connection it happened on.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSerializationFailed
	KindDeserializationFailed
	KindEncodingFailed
	KindDecodingFailed
	KindSocketFailed
	KindPacketTooBig
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindSerializationFailed:
		return "serialization failed"
	case KindDeserializationFailed:
		return "deserialization failed"
	case KindEncodingFailed:
		return "encoding failed"
	case KindDecodingFailed:
		return "decoding failed"
	case KindSocketFailed:
		return "socket failed"
	case KindPacketTooBig:
		return "packet too big"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrSerializationFailed   = &Error{Kind: KindSerializationFailed}
	ErrDeserializationFailed = &Error{Kind: KindDeserializationFailed}
	ErrEncodingFailed        = &Error{Kind: KindEncodingFailed}
	ErrDecodingFailed        = &Error{Kind: KindDecodingFailed}
	ErrSocketFailed          = &Error{Kind: KindSocketFailed}
	ErrPacketTooBig          = &Error{Kind: KindPacketTooBig}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrUnknown               = &Error{Kind: KindUnknown}
)

// Error is a protocol failure tagged with its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return "protocol: " + e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("protocol: %s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("protocol: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("protocol: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
