package czi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// Kind is the coarse classification of a failure.
type Kind uint8

const (
	// KindIO means the underlying storage failed.
	KindIO Kind = iota + 1
	// KindInvalidArgument means the caller passed an out-of-range index,
	// mismatched buffer length, or malformed descriptor.
	KindInvalidArgument
	// KindUnsupported means a valid but undecodable combination of pixel type
	// and compression.
	KindUnsupported
	// KindCorrupt means the native library detected malformed container data.
	KindCorrupt
	// KindAlreadyClosed means the operation targeted a released or finalized
	// handle.
	KindAlreadyClosed
	// KindNativeInternal is an unclassified native failure.
	KindNativeInternal
)

// Sentinels for errors.Is matching; every *Error matches the sentinel of its
// kind.
var (
	ErrIO              = errors.New("i/o failure")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported")
	ErrCorrupt         = errors.New("corrupt container data")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNativeInternal  = errors.New("native library failure")
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnsupported:
		return "unsupported"
	case KindCorrupt:
		return "corrupt"
	case KindAlreadyClosed:
		return "already closed"
	case KindNativeInternal:
		return "native internal"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindIO:
		return ErrIO
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindUnsupported:
		return ErrUnsupported
	case KindCorrupt:
		return ErrCorrupt
	case KindAlreadyClosed:
		return ErrAlreadyClosed
	default:
		return ErrNativeInternal
	}
}

// Error is the structured failure record: a kind, the native status code that
// produced it (zero when the failure originated in this layer), and an
// optional message looked up lazily from the native library.
type Error struct {
	Kind Kind
	Code capi.Status

	op    string
	cause error

	lib     capi.Library
	msgOnce sync.Once
	msg     string
}

// translate maps every native status value to exactly one Kind. The mapping
// is total: codes this layer has never seen classify as KindNativeInternal.
func translate(code capi.Status) Kind {
	switch code {
	case capi.StatusInvalidArgument, capi.StatusIndexOutOfRange:
		return KindInvalidArgument
	case capi.StatusInvalidHandle:
		return KindAlreadyClosed
	case capi.StatusStreamIO:
		return KindIO
	case capi.StatusCorruptData:
		return KindCorrupt
	case capi.StatusUnsupported:
		return KindUnsupported
	default:
		return KindNativeInternal
	}
}

// statusError builds an *Error from a native status code. Callers must only
// invoke it for non-OK codes.
func statusError(lib capi.Library, op string, code capi.Status) *Error {
	return &Error{Kind: translate(code), Code: code, op: op, lib: lib}
}

// layerError builds an *Error that originated in this layer rather than from
// a native call.
func layerError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, op: op, msg: msg}
}

// wrapError attaches a caller-side cause (e.g. the io error an adapter
// captured) to a native failure.
func wrapError(kind Kind, op string, code capi.Status, cause error) *Error {
	return &Error{Kind: kind, Code: code, op: op, cause: cause}
}

func alreadyClosed(op string) *Error {
	return layerError(KindAlreadyClosed, op, "handle released")
}

// Message returns the human-readable description, performing the native
// lookup at most once. Lookup failures fall back to a generic message and
// never fail the caller.
func (e *Error) Message() string {
	e.msgOnce.Do(func() {
		if e.msg != "" || e.lib == nil {
			return
		}
		if m, st := e.lib.GetErrorMessage(e.Code); st.OK() && m != "" {
			e.msg = m
		}
	})
	if e.msg != "" {
		return e.msg
	}
	return e.Kind.String()
}

func (e *Error) Error() string {
	s := "czi: " + e.op + ": " + e.Message()
	if e.Code != capi.StatusOK {
		s += fmt.Sprintf(" (status %d)", e.Code)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Is matches the per-kind sentinel, so errors.Is(err, czi.ErrCorrupt) works
// on any wrapped *Error.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Unwrap exposes the caller-side cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}
