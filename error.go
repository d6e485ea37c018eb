package bookdl

import (
	"errors"
	"fmt"
)

// Application error codes. The download pipeline maps every failure onto one
// of these codes to decide between retry, proxy rotation, skip, and abort.
const (
	EINVALID   = "invalid"   // malformed input (bad link, bad record)
	ENOTFOUND  = "not_found" // entity does not exist
	EPERMANENT = "permanent" // never retry: corrupt archive, over size cap
	EEXPIRED   = "expired"   // CDN link expired; a fresh link is required
	EPROXY     = "proxy"     // tunnel/connection fault or anti-bot block page
	ETRANSIENT = "transient" // timeouts and generic network errors; retryable
	EINTERNAL  = "internal"  // unexpected internal error
)

// Error represents an application error with a machine-readable code and a
// human-readable message.
type Error struct {
	Code    string
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bookdl: code=%s message=%s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("bookdl: code=%s message=%s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Errorf constructs an *Error with the given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapErrorf is like Errorf but records err as the cause.
func WrapErrorf(err error, code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrorCode returns the code of the error, if it is an *Error anywhere in
// its chain. Unclassified errors report EINTERNAL; nil reports "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the message of the error, if it is an *Error anywhere
// in its chain. Unclassified errors report a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Retryable reports whether the error class permits another attempt on the
// same item within the same stage. Expired links are not retryable within
// the transfer stage: the item needs a fresh link first.
func Retryable(err error) bool {
	switch ErrorCode(err) {
	case EPERMANENT, EEXPIRED, EINVALID, ENOTFOUND:
		return false
	default:
		return true
	}
}
