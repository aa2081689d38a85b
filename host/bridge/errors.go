package bridge

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an exchange produced no Response.
type ErrorKind int

const (
	KindNotInitialized ErrorKind = iota + 1
	KindOffline
	KindTransmitFailed
	KindReceiveTimeout
	KindInvalidResponse
	KindDecodeFailed
	KindEncodeFailed
	KindCanceled
	KindInvalidArgument
	KindPollingActive
)

var kindNames = map[ErrorKind]string{
	KindNotInitialized:  "not_initialized",
	KindOffline:         "slave_offline",
	KindTransmitFailed:  "transmit_failed",
	KindReceiveTimeout:  "receive_timeout",
	KindInvalidResponse: "invalid_response",
	KindDecodeFailed:    "decode_failed",
	KindEncodeFailed:    "encode_failed",
	KindCanceled:        "canceled",
	KindInvalidArgument: "invalid_argument",
	KindPollingActive:   "polling_active",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every bridge operation that fails. Compare with
// errors.Is against the Err* sentinels, which match on Kind alone.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
	ErrOffline         = &Error{Kind: KindOffline}
	ErrTransmitFailed  = &Error{Kind: KindTransmitFailed}
	ErrReceiveTimeout  = &Error{Kind: KindReceiveTimeout}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
	ErrDecodeFailed    = &Error{Kind: KindDecodeFailed}
	ErrEncodeFailed    = &Error{Kind: KindEncodeFailed}
	ErrCanceled        = &Error{Kind: KindCanceled}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrPollingActive   = &Error{Kind: KindPollingActive}
)

func newError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
