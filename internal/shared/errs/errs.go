// Package errs defines the typed errors shared across the state-sync core.
//
// Every error type can be matched with errors.As. Wrapped causes are exposed
// through Unwrap so callers can still inspect the underlying error.
//
// Categories:
//   - ProtocolError: malformed frame, unknown type, bad or missing auth
//   - ValidationError: missing ids, oversized payloads
//   - TimeoutError: an RPC deadline elapsed before a response arrived
//   - OverflowError: a bounded queue or channel was full
//   - DecodeError: bad version, truncated stream, out-of-range reference
package errs

import (
	"errors"
	"fmt"
)

// ProtocolError reports a frame the peer should not have sent.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
	}
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError reports a well-formed frame with unacceptable contents.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Msg
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Msg)
}

// TimeoutError reports an RPC that received no answer before its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// OverflowError reports a full queue or channel.
type OverflowError struct {
	Key      string
	Capacity int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("queue full key=%s capacity=%d", e.Key, e.Capacity)
}

// DecodeError reports a binary payload that cannot be decoded or applied.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Msg, e.Err)
	}
	return "decode error: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Protocol builds a ProtocolError with a formatted message.
func Protocol(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationError for field.
func Validation(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Decode builds a DecodeError with a formatted message.
func Decode(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// DecodeWrap builds a DecodeError wrapping err.
func DecodeWrap(err error, format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsDecode reports whether err is or wraps a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsProtocol reports whether err is or wraps a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsOverflow reports whether err is or wraps an OverflowError.
func IsOverflow(err error) bool {
	var oe *OverflowError
	return errors.As(err, &oe)
}
