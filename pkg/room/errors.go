package room

import (
	"errors"
	"fmt"
)

// Room errors.
var (
	ErrNotConnected = errors.New("room: not connected")
	ErrLeft         = errors.New("room: left")
	ErrNoTransport  = errors.New("room: no transport attached")
)

// ClosedError reports that the connection ended before the room was
// joined.
type ClosedError struct {
	Code int
}

// Error implements the error interface.
func (e *ClosedError) Error() string {
	return fmt.Sprintf("room: connection closed before join (code %d)", e.Code)
}

// ProtocolError reports a frame that violates the room protocol.
type ProtocolError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("room: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
