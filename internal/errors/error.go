package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups related error codes.
type Category string

const (
	CategoryConfig      Category = "config"
	CategoryCLI         Category = "cli"
	CategoryMatchmaking Category = "matchmaking"
	CategoryConnection  Category = "connection"
	CategoryDecode      Category = "decode"
)

// Error is a coded error with enough context to tell the user what to fix.
type Error struct {
	// Code is the registry code, e.g. "E102". Empty for ad-hoc errors.
	Code string

	Category Category

	// Message is the one-line summary.
	Message string

	// Detail explains the failure for this particular input.
	Detail string

	// Source names the file, URL or room the error relates to.
	Source string

	// Suggestion tells the user what to change.
	Suggestion string

	// Example shows a working invocation or config fragment.
	Example string

	// Wrapped is the underlying cause.
	Wrapped error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail sets the per-input explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSource sets the file, URL or room the error relates to.
func (e *Error) WithSource(s string) *Error {
	e.Source = s
	return e
}

func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

func (e *Error) WithExample(ex string) *Error {
	e.Example = ex
	return e
}

// Wrap records err as the cause.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New returns an error for a registered code. Unknown codes produce an
// "Unknown error" with the code preserved.
func New(code string) *Error {
	t, ok := registry[code]
	if !ok {
		return &Error{Code: code, Message: "Unknown error"}
	}
	return &Error{
		Code:       code,
		Category:   t.Category,
		Message:    t.Message,
		Detail:     t.Detail,
		Suggestion: t.Suggestion,
	}
}

// Newf returns an uncoded error.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// FromError wraps err under code. An err that already is an *Error is
// returned unchanged.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
