package protocol

import (
	"github.com/vango-dev/roomsync/pkg/codec"
)

// Message is an application message carried by ROOM_DATA.
type Message struct {
	// Type is the message type. Integer types are rendered in decimal.
	Type string

	// Data is the optional payload; Nil when absent.
	Data codec.Value
}

// EncodeRoomData builds a ROOM_DATA frame. msgType should be a String or
// Int value. A Nil data value is omitted from the frame.
func EncodeRoomData(msgType, data codec.Value) []byte {
	e := codec.NewEncoder()
	e.Encode(msgType)
	if !data.IsNil() {
		e.Encode(data)
	}
	return EncodeFrame(CodeRoomData, e.Bytes())
}

// DecodeRoomData parses a ROOM_DATA payload.
func DecodeRoomData(payload []byte) (Message, error) {
	t, off := codec.Decode(payload, 0)
	var msg Message
	switch t.Kind() {
	case codec.KindString, codec.KindInt, codec.KindUint:
		msg.Type = t.Text()
	default:
		return msg, ErrInvalidMessageType
	}
	if off < len(payload) {
		msg.Data, _ = codec.Decode(payload, off)
	}
	return msg, nil
}
