package room

import (
	"context"
	"testing"
	"time"

	"github.com/vango-dev/roomsync/internal/fakeserver"
	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/schema"
	"github.com/vango-dev/roomsync/pkg/transport"
)

func dialRoom(t *testing.T, srv *fakeserver.Server) (*Room, *fakeserver.Peer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, srv.WSURL()+"/proc1/room1?sessionId=sess1", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	r := New("room1", "sess1", testConfig())
	r.Attach(conn)
	t.Cleanup(r.Leave)
	if err := conn.Run(r.Events()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	peer, err := srv.NextPeer(5 * time.Second)
	if err != nil {
		t.Fatalf("NextPeer() error = %v", err)
	}
	if err := r.WaitJoined(ctx); err != nil {
		t.Fatalf("WaitJoined() error = %v", err)
	}
	if _, err := peer.Expect(protocol.CodeJoinRoom, 2*time.Second); err != nil {
		t.Fatalf("join ack: %v", err)
	}
	return r, peer
}

func TestSession_EndToEnd(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{
		ReconnectionToken: "tok-1",
		Handshake:         schema.EncodeLegacyHandshake(playerSchema()),
	})
	defer srv.Close()

	r, peer := dialRoom(t, srv)
	if r.ReconnectionToken() != "tok-1" {
		t.Fatalf("ReconnectionToken() = %q", r.ReconnectionToken())
	}
	states := stateCh(r)

	for _, err := range []error{
		peer.SendState(onePlayer()),
		peer.SendPatch(addSecondPlayer()),
		peer.SendPatch(setFirstScore()),
	} {
		if err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var s codec.Value
	for i := 0; i < 3; i++ {
		s = nextState(t, states)
	}
	if got, _ := score(s, "p1"); got != 10 {
		t.Fatalf("p1 score = %d, want 10", got)
	}
	if got, _ := score(s, "p2"); got != 5 {
		t.Fatalf("p2 score = %d, want 5", got)
	}

	got := make(chan protocol.Message, 1)
	r.OnMessage("hello", func(msg protocol.Message) { got <- msg })
	if err := peer.SendMessage("hello", codec.String("world")); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	select {
	case msg := <-got:
		if msg.Data.Text() != "world" {
			t.Fatalf("message data = %v", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	if err := r.Send("move", map[string]any{"dir": "up"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	frame, err := peer.Expect(protocol.CodeRoomData, 2*time.Second)
	if err != nil {
		t.Fatalf("server did not receive ROOM_DATA: %v", err)
	}
	msg, _ := protocol.DecodeRoomData(frame[1:])
	if dir, _ := msg.Data.Get("dir"); msg.Type != "move" || dir.Text() != "up" {
		t.Fatalf("server received %+v", msg)
	}

	r.Leave()
	if _, err := peer.Expect(protocol.CodeLeaveRoom, 2*time.Second); err != nil {
		t.Fatalf("server did not receive LEAVE_ROOM: %v", err)
	}
	select {
	case <-peer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed after leave")
	}
	if peer.CloseCode() != transport.CloseNormal {
		t.Fatalf("close code = %d, want %d", peer.CloseCode(), transport.CloseNormal)
	}
}

func TestSession_ServerClose(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{
		Handshake: schema.EncodeReflectionHandshake(playerSchema()),
	})
	defer srv.Close()

	r, peer := dialRoom(t, srv)
	codes := make(chan int, 1)
	r.OnLeave(func(code int) { codes <- code })

	if err := peer.Close(4000); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case code := <-codes:
		if code != 4000 {
			t.Fatalf("leave code = %d, want 4000", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leave handler not called")
	}
}
