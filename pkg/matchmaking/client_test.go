package matchmaking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/roomsync/internal/fakeserver"
	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/metrics"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/schema"
	"github.com/vango-dev/roomsync/pkg/tokenstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSchema() *schema.Schema {
	return &schema.Schema{
		RootType: 0,
		Types: schema.TypeTable{
			0: {ID: 0, Fields: map[int]schema.FieldDef{
				0: {Index: 0, Name: "round", Type: codec.PrimUint8, ReferencedType: -1},
			}},
		},
	}
}

func newClient(t *testing.T, srv *fakeserver.Server, mutate func(*Config)) *Client {
	t.Helper()
	rcfg := room.DefaultConfig()
	rcfg.HeartbeatInterval = 0
	rcfg.InputInterval = 0
	cfg := &Config{
		ServerURL:   srv.WSURL(),
		JoinTimeout: 2 * time.Second,
		Room:        rcfg,
		Logger:      quietLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestJoinOrCreate(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{
		RoomID:            "room42",
		ProcessID:         "procA",
		SessionID:         "sessX",
		ReconnectionToken: "tok/with+chars",
		Handshake:         schema.EncodeReflectionHandshake(testSchema()),
	})
	defer srv.Close()

	tokens := tokenstore.NewMemoryStore()
	reg := prometheus.NewRegistry()
	c := newClient(t, srv, func(cfg *Config) {
		cfg.Origin = "https://play.example.test"
		cfg.SessionToken = "secret"
		cfg.Tokens = tokens
		cfg.Metrics = metrics.New(metrics.WithNamespace("test"), metrics.WithRegistry(reg))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := c.JoinOrCreate(ctx, "snake", map[string]any{"name": "ada", "mode": "ranked"})
	if err != nil {
		t.Fatalf("JoinOrCreate() error = %v", err)
	}
	defer r.Leave()

	if r.Status() != room.StatusJoined {
		t.Fatalf("Status() = %v, want joined", r.Status())
	}
	if r.ID() != "room42" || r.SessionID() != "sessX" {
		t.Fatalf("room = %s/%s, want room42/sessX", r.ID(), r.SessionID())
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("matchmaking requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.RoomType != "snake" || req.Options["name"] != "ada" || req.Options["mode"] != "ranked" {
		t.Fatalf("request = %+v", req)
	}
	if req.Origin != "https://play.example.test" {
		t.Fatalf("Origin = %q", req.Origin)
	}
	if req.Cookie != "session_token=secret" {
		t.Fatalf("Cookie = %q", req.Cookie)
	}

	peer, err := srv.NextPeer(time.Second)
	if err != nil {
		t.Fatalf("NextPeer() error = %v", err)
	}
	if got := peer.Query.Get("sessionId"); got != "sessX" {
		t.Fatalf("sessionId = %q", got)
	}
	if got := peer.Query.Get("reconnectionToken"); got != "tok/with+chars" {
		t.Fatalf("reconnectionToken = %q", got)
	}
	if got := peer.Header.Get("Cookie"); got != "session_token=secret" {
		t.Fatalf("ws Cookie = %q", got)
	}
	if got := peer.Header.Get("Origin"); got != "https://play.example.test" {
		t.Fatalf("ws Origin = %q", got)
	}

	entry, err := tokens.Load(ctx, "room42")
	if err != nil {
		t.Fatalf("token not saved: %v", err)
	}
	if entry.ReconnectionToken != "tok/with+chars" || entry.RoomType != "snake" || entry.ProcessID != "procA" {
		t.Fatalf("entry = %+v", entry)
	}
	if n, err := testutil.GatherAndCount(reg, "test_join_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("join histogram count = %d, %v", n, err)
	}

	r.Leave()
	<-r.Done()
	if _, err := tokens.Load(ctx, "room42"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Fatalf("token after leave error = %v, want ErrNotFound", err)
	}
}

func TestJoinOrCreate_TopLevelRoom(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{
		MatchmakeResponse: map[string]any{
			"sessionId": "s9",
			"roomId":    "room1",
			"processId": "proc1",
		},
	})
	defer srv.Close()

	c := newClient(t, srv, nil)
	r, err := c.JoinOrCreate(context.Background(), "lobby", nil)
	if err != nil {
		t.Fatalf("JoinOrCreate() error = %v", err)
	}
	defer r.Leave()
	if r.SessionID() != "s9" {
		t.Fatalf("SessionID() = %q, want s9", r.SessionID())
	}
}

func TestJoinOrCreate_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		resp  map[string]any
		field string
	}{
		{"no session", map[string]any{"room": map[string]any{"roomId": "r", "processId": "p"}}, "sessionId"},
		{"no room", map[string]any{"sessionId": "s"}, "roomId"},
		{"empty room", map[string]any{"sessionId": "s", "room": map[string]any{"roomId": ""}}, "roomId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeserver.New(fakeserver.Config{MatchmakeResponse: tt.resp})
			defer srv.Close()

			_, err := newClient(t, srv, nil).JoinOrCreate(context.Background(), "lobby", nil)
			var me *Error
			if !errors.As(err, &me) || me.Kind != KindMissingField {
				t.Fatalf("error = %v, want KindMissingField", err)
			}
			if me.Field != tt.field {
				t.Fatalf("Field = %q, want %q", me.Field, tt.field)
			}
			if srv.Dials() != 0 {
				t.Fatalf("Dials() = %d, want 0", srv.Dials())
			}
		})
	}
}

func TestJoinOrCreate_Status(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{MatchmakeStatus: http.StatusServiceUnavailable})
	defer srv.Close()

	_, err := newClient(t, srv, nil).JoinOrCreate(context.Background(), "lobby", nil)
	var me *Error
	if !errors.As(err, &me) || me.Kind != KindStatus {
		t.Fatalf("error = %v, want KindStatus", err)
	}
	if me.Status != http.StatusServiceUnavailable || me.Body != "matchmaking unavailable" {
		t.Fatalf("Status = %d, Body = %q", me.Status, me.Body)
	}
}

func TestJoinOrCreate_MalformedResponse(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer hs.Close()

	c, err := New(&Config{ServerURL: hs.URL, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.JoinOrCreate(context.Background(), "lobby", nil)
	if !IsKind(err, KindMalformed) {
		t.Fatalf("error = %v, want KindMalformed", err)
	}
}

func TestJoinOrCreate_JoinFailures(t *testing.T) {
	tests := []struct {
		name      string
		onConnect func(p *fakeserver.Peer)
		kind      Kind
	}{
		{"server error", func(p *fakeserver.Peer) { _ = p.SendError(4212, "room is full") }, KindRejected},
		{"closed", func(p *fakeserver.Peer) { _ = p.Close(4000) }, KindClosed},
		{"no confirmation", func(p *fakeserver.Peer) {}, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeserver.New(fakeserver.Config{OnConnect: tt.onConnect})
			defer srv.Close()

			c := newClient(t, srv, func(cfg *Config) { cfg.JoinTimeout = 200 * time.Millisecond })
			_, err := c.JoinOrCreate(context.Background(), "lobby", nil)
			if !IsKind(err, tt.kind) {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestJoinOrCreate_RejectedCarriesServerError(t *testing.T) {
	srv := fakeserver.New(fakeserver.Config{
		OnConnect: func(p *fakeserver.Peer) { _ = p.SendError(4212, "room is full") },
	})
	defer srv.Close()

	_, err := newClient(t, srv, nil).JoinOrCreate(context.Background(), "lobby", nil)
	var se *protocol.ServerError
	if !errors.As(err, &se) || se.Message != "room is full" {
		t.Fatalf("error = %v, want ServerError room is full", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "ws://", "://bad"} {
		if _, err := New(&Config{ServerURL: raw}); !IsKind(err, KindInvalidURL) {
			t.Errorf("New(%q) error = %v, want KindInvalidURL", raw, err)
		}
	}
}

func TestRoomURL(t *testing.T) {
	c, err := New(&Config{ServerURL: "wss://game.example.test/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tests := []struct {
		res  Reservation
		want string
	}{
		{
			Reservation{ProcessID: "p1", RoomID: "r1", SessionID: "s1"},
			"wss://game.example.test/p1/r1?sessionId=s1",
		},
		{
			Reservation{ProcessID: "p1", RoomID: "r1", SessionID: "s1", ReconnectionToken: "a b+c/="},
			"wss://game.example.test/p1/r1?sessionId=s1&reconnectionToken=a+b%2Bc%2F%3D",
		},
	}
	for _, tt := range tests {
		if got := c.RoomURL(&tt.res); got != tt.want {
			t.Errorf("RoomURL(%+v) = %q, want %q", tt.res, got, tt.want)
		}
	}
}

func TestHTTPBase(t *testing.T) {
	tests := map[string]string{
		"wss://game.example.test": "https://game.example.test",
		"ws://localhost:2567":     "http://localhost:2567",
		"https://already.example": "https://already.example",
		"wss://host/with/path":    "https://host/with/path",
	}
	for in, want := range tests {
		if got := HTTPBase(in); got != want {
			t.Errorf("HTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindStatus, Op: "reserve", Status: 500, Body: "boom"}
	if got := err.Error(); got != "matchmaking: reserve: status 500: boom" {
		t.Fatalf("Error() = %q", got)
	}
	wrapped := &Error{Kind: KindTimeout, Op: "join", Err: context.DeadlineExceeded}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Fatal("Unwrap lost context.DeadlineExceeded")
	}
}
