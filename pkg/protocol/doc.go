// Package protocol implements the room framing protocol spoken over the
// WebSocket transport.
//
// Every binary frame starts with a one-byte code:
//
//	┌──────────┬──────────────────────────────────────────────┐
//	│ Code     │ Payload (code specific)                      │
//	│ (1 byte) │                                              │
//	└──────────┴──────────────────────────────────────────────┘
//
// # Codes
//
//   - HANDSHAKE (9): schema handshake bytes
//   - JOIN_ROOM (10): join confirmation from the server, or the client's
//     one-byte acknowledgement
//   - ERROR (11): server error code and message
//   - LEAVE_ROOM (12): client leave request
//   - ROOM_DATA (13): application message, both directions
//   - ROOM_STATE (14): full state
//   - ROOM_STATE_PATCH (15): incremental state patch
//   - ROOM_DATA_SCHEMA (17): full state, handled like ROOM_STATE
//
// # Join confirmation
//
//	tokenLen:u8 token serializerLen:u8 serializerID [handshake bytes]
//
// The handshake bytes are present only when the serializer is "schema".
// An empty payload is a valid confirmation with nothing attached.
//
// # Application messages
//
// A ROOM_DATA payload is a codec-encoded type (string or integer) followed
// by an optional codec-encoded value.
package protocol
