package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vango-dev/roomsync/pkg/codec"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeHandshake, "HANDSHAKE"},
		{CodeJoinRoom, "JOIN_ROOM"},
		{CodeError, "ERROR"},
		{CodeLeaveRoom, "LEAVE_ROOM"},
		{CodeRoomData, "ROOM_DATA"},
		{CodeRoomState, "ROOM_STATE"},
		{CodeRoomStatePatch, "ROOM_STATE_PATCH"},
		{CodeRoomDataSchema, "ROOM_DATA_SCHEMA"},
		{Code(99), "UNKNOWN(99)"},
	}
	for _, tc := range tests {
		if got := tc.code.String(); got != tc.want {
			t.Errorf("Code(%d).String() = %q, want %q", tc.code, got, tc.want)
		}
	}
	if Code(16).Known() {
		t.Error("Code(16).Known() = true, want false")
	}
}

func TestDecodeFrame(t *testing.T) {
	code, payload, err := DecodeFrame([]byte{15, 1, 2})
	if err != nil || code != CodeRoomStatePatch || !bytes.Equal(payload, []byte{1, 2}) {
		t.Errorf("DecodeFrame = %v, %v, %v", code, payload, err)
	}
	if _, _, err := DecodeFrame(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("DecodeFrame(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestJoinRoundTrip(t *testing.T) {
	jc := JoinConfirmation{
		ReconnectionToken: "tok-123",
		SerializerID:      SerializerSchema,
		Handshake:         []byte{0, 1, 0, 0},
	}
	frame, err := EncodeJoin(jc)
	if err != nil {
		t.Fatalf("EncodeJoin error: %v", err)
	}
	code, payload, _ := DecodeFrame(frame)
	if code != CodeJoinRoom {
		t.Fatalf("code = %v, want JOIN_ROOM", code)
	}
	got, err := ParseJoin(payload)
	if err != nil {
		t.Fatalf("ParseJoin error: %v", err)
	}
	if got.ReconnectionToken != jc.ReconnectionToken || got.SerializerID != jc.SerializerID ||
		!bytes.Equal(got.Handshake, jc.Handshake) {
		t.Errorf("ParseJoin = %+v, want %+v", got, jc)
	}
}

func TestParseJoin(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    JoinConfirmation
		wantErr bool
	}{
		{"empty", nil, JoinConfirmation{}, false},
		{"token only", []byte{2, 'a', 'b'}, JoinConfirmation{ReconnectionToken: "ab"}, false},
		{"non-schema serializer ignores trailer", []byte{0, 4, 'n', 'o', 'n', 'e', 9, 9}, JoinConfirmation{SerializerID: "none"}, false},
		{"token overruns", []byte{5, 'a'}, JoinConfirmation{}, true},
		{"serializer overruns", []byte{0, 6, 's'}, JoinConfirmation{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJoin(tc.payload)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseJoin error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got.ReconnectionToken != tc.want.ReconnectionToken || got.SerializerID != tc.want.SerializerID ||
				len(got.Handshake) != len(tc.want.Handshake) {
				t.Errorf("ParseJoin = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRoomDataRoundTrip(t *testing.T) {
	data := codec.Map(map[string]codec.Value{"dx": codec.Float(0.5)})
	frame := EncodeRoomData(codec.String("input"), data)
	code, payload, _ := DecodeFrame(frame)
	if code != CodeRoomData {
		t.Fatalf("code = %v, want ROOM_DATA", code)
	}
	msg, err := DecodeRoomData(payload)
	if err != nil {
		t.Fatalf("DecodeRoomData error: %v", err)
	}
	if msg.Type != "input" || !codec.Equal(msg.Data, data) {
		t.Errorf("DecodeRoomData = %+v", msg)
	}
}

func TestRoomDataWithoutPayload(t *testing.T) {
	frame := EncodeRoomData(codec.Int(7), codec.Nil())
	if !bytes.Equal(frame, []byte{13, 7}) {
		t.Fatalf("EncodeRoomData = %x, want 0d07", frame)
	}
	msg, err := DecodeRoomData(frame[1:])
	if err != nil {
		t.Fatalf("DecodeRoomData error: %v", err)
	}
	if msg.Type != "7" || !msg.Data.IsNil() {
		t.Errorf("DecodeRoomData = %+v, want type 7 and nil data", msg)
	}
}

func TestRoomDataInvalidType(t *testing.T) {
	if _, err := DecodeRoomData([]byte{0xc3}); !errors.Is(err, ErrInvalidMessageType) {
		t.Errorf("DecodeRoomData(bool type) error = %v, want ErrInvalidMessageType", err)
	}
}

func TestServerError(t *testing.T) {
	frame := EncodeServerError(4212, "room is full")
	se := DecodeServerError(frame[1:])
	if se.Code != 4212 || se.Message != "room is full" {
		t.Errorf("DecodeServerError = %+v", se)
	}

	raw := DecodeServerError([]byte{0x01, 'o', 'o', 'p', 's'})
	if raw.Code != 1 || raw.Message != "oops" {
		t.Errorf("DecodeServerError(raw) = %+v, want code 1 message oops", raw)
	}

	if se := DecodeServerError(nil); se.Code != 0 || se.Message != "" {
		t.Errorf("DecodeServerError(nil) = %+v", se)
	}
}
