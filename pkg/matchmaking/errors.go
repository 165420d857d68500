package matchmaking

import (
	"errors"
	"fmt"
)

// Kind classifies a matchmaking failure.
type Kind int

const (
	KindInvalidURL Kind = iota + 1
	KindStatus
	KindMalformed
	KindMissingField
	KindTransport
	KindRejected
	KindClosed
	KindTimeout
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindMissingField:
		return "missing_field"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindClosed:
		return "closed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned by every failed matchmaking call.
type Error struct {
	Kind Kind
	Op   string

	// Status and Body are set for KindStatus.
	Status int
	Body   string

	// Field names the missing field for KindMissingField.
	Field string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("matchmaking: %s: %s", e.Op, e.Kind)
	switch {
	case e.Kind == KindStatus:
		msg += fmt.Sprintf(" %d", e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	case e.Kind == KindMissingField:
		msg += ": " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a matchmaking *Error of kind k.
func IsKind(err error, k Kind) bool {
	var me *Error
	return errors.As(err, &me) && me.Kind == k
}
