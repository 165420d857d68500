package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// ServerError is an ERROR frame sent by the server.
type ServerError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// DecodeServerError parses an ERROR payload: a state-stream number code
// followed by the message. The message is read as an encoded string when it
// starts with a string tag, and as raw UTF-8 otherwise.
func DecodeServerError(payload []byte) *ServerError {
	if len(payload) == 0 {
		return &ServerError{}
	}
	code, off := codec.ReadVarint(payload, 0)
	se := &ServerError{Code: int(code)}
	if off >= len(payload) {
		return se
	}

	rest := payload[off:]
	if p := rest[0]; (p >= 0xa0 && p <= 0xbf) || p == 0xd9 || p == 0xda || p == 0xdb {
		msg, next := codec.ReadWireString(rest, 0)
		if next == len(rest) {
			se.Message = msg
			return se
		}
	}
	if utf8.Valid(rest) {
		se.Message = string(rest)
	}
	return se
}

// EncodeServerError builds an ERROR frame.
func EncodeServerError(code int, message string) []byte {
	buf := codec.AppendVarint(nil, int64(code))
	buf = codec.AppendWireString(buf, message)
	return EncodeFrame(CodeError, buf)
}
