package schema

import "errors"

// Handshake errors.
var (
	ErrEmptyHandshake   = errors.New("schema: empty handshake")
	ErrInvalidHandshake = errors.New("schema: handshake matches neither legacy nor reflection format")
	ErrNoTypes          = errors.New("schema: no types defined")
	ErrUnknownRootType  = errors.New("schema: root type not defined")
)
