package protocol

import "fmt"

// Code is the first byte of every frame.
type Code uint8

const (
	CodeHandshake      Code = 9
	CodeJoinRoom       Code = 10
	CodeError          Code = 11
	CodeLeaveRoom      Code = 12
	CodeRoomData       Code = 13
	CodeRoomState      Code = 14
	CodeRoomStatePatch Code = 15
	CodeRoomDataSchema Code = 17
)

// String returns the protocol name of the code.
func (c Code) String() string {
	switch c {
	case CodeHandshake:
		return "HANDSHAKE"
	case CodeJoinRoom:
		return "JOIN_ROOM"
	case CodeError:
		return "ERROR"
	case CodeLeaveRoom:
		return "LEAVE_ROOM"
	case CodeRoomData:
		return "ROOM_DATA"
	case CodeRoomState:
		return "ROOM_STATE"
	case CodeRoomStatePatch:
		return "ROOM_STATE_PATCH"
	case CodeRoomDataSchema:
		return "ROOM_DATA_SCHEMA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// Known reports whether c is a defined code.
func (c Code) Known() bool {
	switch c {
	case CodeHandshake, CodeJoinRoom, CodeError, CodeLeaveRoom,
		CodeRoomData, CodeRoomState, CodeRoomStatePatch, CodeRoomDataSchema:
		return true
	}
	return false
}

// SerializerSchema is the serializer id whose join confirmation carries a
// schema handshake.
const SerializerSchema = "schema"
