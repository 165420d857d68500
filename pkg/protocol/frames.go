package protocol

import "errors"

// Frame errors.
var (
	ErrEmptyFrame         = errors.New("protocol: empty frame")
	ErrMalformedJoin      = errors.New("protocol: malformed join confirmation")
	ErrInvalidMessageType = errors.New("protocol: message type must be a string or integer")
	ErrFieldTooLong       = errors.New("protocol: field longer than 255 bytes")
)

// EncodeFrame prefixes payload with code.
func EncodeFrame(code Code, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(code))
	return append(out, payload...)
}

// DecodeFrame splits a frame into its code and payload. The payload aliases
// data.
func DecodeFrame(data []byte) (Code, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return Code(data[0]), data[1:], nil
}

// JoinAck is the one-byte frame a client sends after a join confirmation.
func JoinAck() []byte {
	return []byte{byte(CodeJoinRoom)}
}

// LeaveRequest is the one-byte frame a client sends to leave a room.
func LeaveRequest() []byte {
	return []byte{byte(CodeLeaveRoom)}
}

// JoinConfirmation is the parsed JOIN_ROOM payload.
type JoinConfirmation struct {
	ReconnectionToken string
	SerializerID      string

	// Handshake holds the schema handshake when SerializerID is "schema".
	Handshake []byte
}

// ParseJoin parses a JOIN_ROOM payload. An empty payload yields the zero
// confirmation.
func ParseJoin(payload []byte) (JoinConfirmation, error) {
	var jc JoinConfirmation
	if len(payload) == 0 {
		return jc, nil
	}

	off := 0
	token, off, ok := lenPrefixed(payload, off)
	if !ok {
		return jc, ErrMalformedJoin
	}
	jc.ReconnectionToken = token

	if off >= len(payload) {
		return jc, nil
	}
	serializer, off, ok := lenPrefixed(payload, off)
	if !ok {
		return jc, ErrMalformedJoin
	}
	jc.SerializerID = serializer

	if serializer == SerializerSchema && off < len(payload) {
		jc.Handshake = append([]byte(nil), payload[off:]...)
	}
	return jc, nil
}

// EncodeJoin builds a JOIN_ROOM frame as a server sends it.
func EncodeJoin(jc JoinConfirmation) ([]byte, error) {
	if len(jc.ReconnectionToken) > 255 || len(jc.SerializerID) > 255 {
		return nil, ErrFieldTooLong
	}
	out := []byte{byte(CodeJoinRoom), byte(len(jc.ReconnectionToken))}
	out = append(out, jc.ReconnectionToken...)
	out = append(out, byte(len(jc.SerializerID)))
	out = append(out, jc.SerializerID...)
	return append(out, jc.Handshake...), nil
}

func lenPrefixed(buf []byte, off int) (string, int, bool) {
	if off >= len(buf) {
		return "", off, false
	}
	n := int(buf[off])
	off++
	if len(buf)-off < n {
		return "", off, false
	}
	return string(buf[off : off+n]), off + n, true
}
