// Package matchmaking reserves a seat in a room over HTTP and connects a
// room session to it.
//
//	client, err := matchmaking.New(&matchmaking.Config{ServerURL: "wss://game.example.com"})
//	if err != nil {
//	    return err
//	}
//	r, err := client.JoinOrCreate(ctx, "snake", map[string]any{"name": "ada"})
//	if err != nil {
//	    return err
//	}
//	defer r.Leave()
package matchmaking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/roomsync/pkg/metrics"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/tokenstore"
	"github.com/vango-dev/roomsync/pkg/transport"
)

const (
	tracerName = "github.com/vango-dev/roomsync/pkg/matchmaking"

	maxErrorBody = 64 << 10
)

// Config configures a Client.
type Config struct {
	// ServerURL is the room server base, ws:// or wss://. An http(s) URL is
	// accepted and mapped to its WebSocket scheme.
	ServerURL string

	// HTTPURL is the matchmaker base. Default: ServerURL with wss mapped
	// to https and ws to http.
	HTTPURL string

	// Origin is sent as the Origin header, with Referer set to Origin + "/".
	Origin string

	// SessionToken is sent as a cookie named CookieName.
	SessionToken string

	// CookieName names the session cookie. Default: "session_token".
	CookieName string

	// HTTPTimeout bounds the matchmaking request. Default: 30 seconds.
	HTTPTimeout time.Duration

	// JoinTimeout bounds the wait for the join confirmation after the
	// connection opens. Default: 15 seconds.
	JoinTimeout time.Duration

	// HTTPClient overrides the client used for matchmaking requests.
	HTTPClient *http.Client

	// Transport and Room configure each connection and room session.
	Transport *transport.Config
	Room      *room.Config

	// Tokens receives the reconnection token of every joined room. The
	// entry is deleted when the room is left normally.
	Tokens tokenstore.Store

	Logger  *slog.Logger
	Metrics *metrics.Collector

	// Tracer overrides the OpenTelemetry tracer.
	Tracer trace.Tracer
}

// Reservation is the matchmaker's answer: a seat in a room.
type Reservation struct {
	RoomType          string
	RoomID            string
	ProcessID         string
	SessionID         string
	ReconnectionToken string
}

// Client talks to one matchmaker and room server.
type Client struct {
	config  Config
	wsBase  string
	httpURL string
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New validates cfg and returns a Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Client{config: *cfg}

	wsURL, err := transport.WebSocketURL(cfg.ServerURL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Op: "new", Err: err}
	}
	c.wsBase = strings.TrimSuffix(wsURL.String(), "/")

	c.httpURL = cfg.HTTPURL
	if c.httpURL == "" {
		c.httpURL = HTTPBase(c.wsBase)
	}
	if u, err := url.Parse(c.httpURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = errors.New("http url must be absolute http or https")
		}
		return nil, &Error{Kind: KindInvalidURL, Op: "new", Err: err}
	}
	c.httpURL = strings.TrimSuffix(c.httpURL, "/")

	if c.config.CookieName == "" {
		c.config.CookieName = "session_token"
	}
	if c.config.HTTPTimeout <= 0 {
		c.config.HTTPTimeout = 30 * time.Second
	}
	if c.config.JoinTimeout <= 0 {
		c.config.JoinTimeout = 15 * time.Second
	}

	c.http = cfg.HTTPClient
	if c.http == nil {
		c.http = &http.Client{Timeout: c.config.HTTPTimeout}
	}
	c.logger = cfg.Logger
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.tracer = cfg.Tracer
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

// HTTPBase maps a WebSocket base URL to its HTTP counterpart.
func HTTPBase(wsBase string) string {
	switch {
	case strings.HasPrefix(wsBase, "wss://"):
		return "https://" + strings.TrimPrefix(wsBase, "wss://")
	case strings.HasPrefix(wsBase, "ws://"):
		return "http://" + strings.TrimPrefix(wsBase, "ws://")
	default:
		return wsBase
	}
}

// RoomURL builds the WebSocket URL for res.
func (c *Client) RoomURL(res *Reservation) string {
	var b strings.Builder
	b.WriteString(c.wsBase)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(res.ProcessID))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(res.RoomID))
	b.WriteString("?sessionId=")
	b.WriteString(url.QueryEscape(res.SessionID))
	if res.ReconnectionToken != "" {
		b.WriteString("&reconnectionToken=")
		b.WriteString(url.QueryEscape(res.ReconnectionToken))
	}
	return b.String()
}

// JoinOrCreate reserves a seat in a room of roomType and joins it. It
// returns once the room confirms the join, or fails with an *Error.
func (c *Client) JoinOrCreate(ctx context.Context, roomType string, options map[string]any) (*room.Room, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "roomsync.JoinOrCreate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("roomsync.room_type", roomType)),
	)
	defer span.End()

	r, err := c.joinOrCreate(ctx, roomType, options)
	if err != nil {
		outcome := "error"
		var me *Error
		if errors.As(err, &me) {
			outcome = me.Kind.String()
		}
		c.config.Metrics.ObserveJoin(outcome, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("join failed", "room_type", roomType, "error", err)
		return nil, err
	}

	c.config.Metrics.ObserveJoin("ok", time.Since(start))
	span.SetAttributes(
		attribute.String("roomsync.room_id", r.ID()),
		attribute.String("roomsync.session_id", r.SessionID()),
	)
	span.SetStatus(codes.Ok, "")
	return r, nil
}

func (c *Client) joinOrCreate(ctx context.Context, roomType string, options map[string]any) (*room.Room, error) {
	res, err := c.Reserve(ctx, roomType, options)
	if err != nil {
		return nil, err
	}
	return c.Connect(ctx, res)
}

// Reserve issues the matchmaking request without connecting.
func (c *Client) Reserve(ctx context.Context, roomType string, options map[string]any) (*Reservation, error) {
	const op = "reserve"
	if options == nil {
		options = map[string]any{}
	}
	body, err := json.Marshal(options)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}

	endpoint := c.httpURL + "/matchmake/joinOrCreate/" + url.PathEscape(roomType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers() {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindTransport
		if ctx.Err() != nil || isTimeout(err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindStatus, Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	res, err := parseReservation(data)
	if err != nil {
		return nil, err
	}
	res.RoomType = roomType
	c.logger.Debug("seat reserved",
		"room_type", roomType,
		"room_id", res.RoomID,
		"process_id", res.ProcessID,
		"has_token", res.ReconnectionToken != "")
	return res, nil
}

type reservationResponse struct {
	SessionID         string `json:"sessionId"`
	ReconnectionToken string `json:"reconnectionToken"`
	RoomID            string `json:"roomId"`
	ProcessID         string `json:"processId"`
	Room              *struct {
		RoomID    string `json:"roomId"`
		ProcessID string `json:"processId"`
	} `json:"room"`
}

func parseReservation(data []byte) (*Reservation, error) {
	const op = "reserve"
	var rr reservationResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}

	res := &Reservation{
		SessionID:         rr.SessionID,
		ReconnectionToken: rr.ReconnectionToken,
		RoomID:            rr.RoomID,
		ProcessID:         rr.ProcessID,
	}
	if rr.Room != nil {
		res.RoomID = rr.Room.RoomID
		res.ProcessID = rr.Room.ProcessID
	}

	switch {
	case res.RoomID == "":
		return nil, &Error{Kind: KindMissingField, Op: op, Field: "roomId"}
	case res.SessionID == "":
		return nil, &Error{Kind: KindMissingField, Op: op, Field: "sessionId"}
	}
	return res, nil
}

// Connect opens the room connection for res and waits for the join.
func (c *Client) Connect(ctx context.Context, res *Reservation) (*room.Room, error) {
	const op = "connect"

	tcfg := transport.DefaultConfig()
	if c.config.Transport != nil {
		cp := *c.config.Transport
		tcfg = &cp
	}
	if tcfg.Origin == "" {
		tcfg.Origin = c.config.Origin
	}
	if tcfg.Header == nil {
		tcfg.Header = http.Header{}
	} else {
		tcfg.Header = tcfg.Header.Clone()
	}
	for k, v := range c.headers() {
		if k != "Origin" {
			tcfg.Header[k] = v
		}
	}
	if tcfg.Logger == nil {
		tcfg.Logger = c.logger
	}

	conn, err := transport.Dial(ctx, c.RoomURL(res), tcfg)
	if err != nil {
		kind := KindTransport
		if ctx.Err() != nil {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Op: op, Err: err}
	}

	rcfg := room.DefaultConfig()
	if c.config.Room != nil {
		cp := *c.config.Room
		rcfg = &cp
	}
	if rcfg.Logger == nil {
		rcfg.Logger = c.logger
	}
	if rcfg.Metrics == nil {
		rcfg.Metrics = c.config.Metrics
	}
	_, rcfg.Span = c.tracer.Start(ctx, "roomsync.Room",
		trace.WithAttributes(
			attribute.String("roomsync.room_type", res.RoomType),
			attribute.String("roomsync.room_id", res.RoomID),
		))

	r := room.New(res.RoomID, res.SessionID, rcfg)
	r.Attach(conn)
	if err := conn.Run(r.Events()); err != nil {
		r.Leave()
		return nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}

	jctx, cancel := context.WithTimeout(ctx, c.config.JoinTimeout)
	defer cancel()
	if err := r.WaitJoined(jctx); err != nil {
		r.Leave()
		return nil, joinError(err)
	}

	c.saveToken(ctx, res, r)
	return r, nil
}

func joinError(err error) *Error {
	const op = "join"
	var (
		se *protocol.ServerError
		ce *room.ClosedError
		pe *room.ProtocolError
	)
	switch {
	case errors.As(err, &se):
		return &Error{Kind: KindRejected, Op: op, Err: err}
	case errors.As(err, &ce):
		return &Error{Kind: KindClosed, Op: op, Err: err}
	case errors.As(err, &pe):
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	default:
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
}

// saveToken records the room's reconnection token and removes it again
// after a normal leave.
func (c *Client) saveToken(ctx context.Context, res *Reservation, r *room.Room) {
	store := c.config.Tokens
	if store == nil {
		return
	}
	token := r.ReconnectionToken()
	if token == "" {
		token = res.ReconnectionToken
	}
	if token == "" {
		return
	}

	entry := tokenstore.Entry{
		RoomID:            res.RoomID,
		ProcessID:         res.ProcessID,
		RoomType:          res.RoomType,
		SessionID:         res.SessionID,
		ReconnectionToken: token,
		SavedAt:           time.Now(),
	}
	if err := store.Save(ctx, entry); err != nil {
		c.logger.Warn("reconnection token not saved", "room_id", res.RoomID, "error", err)
		return
	}

	r.OnLeave(func(code int) {
		if code != transport.CloseNormal {
			return
		}
		if err := store.Delete(context.Background(), res.RoomID); err != nil {
			c.logger.Warn("reconnection token not deleted", "room_id", res.RoomID, "error", err)
		}
	})
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	if c.config.Origin != "" {
		h.Set("Origin", c.config.Origin)
		h.Set("Referer", strings.TrimSuffix(c.config.Origin, "/")+"/")
	}
	if c.config.SessionToken != "" {
		h.Set("Cookie", (&http.Cookie{Name: c.config.CookieName, Value: c.config.SessionToken}).String())
	}
	return h
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
