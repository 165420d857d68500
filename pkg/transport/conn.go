// Package transport provides the duplex binary channel a room session runs
// over: a client WebSocket without compression that answers protocol
// pings on its own and reports frames and closure through callbacks.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes reported to OnClose.
const (
	CloseNormal        = websocket.CloseNormalClosure
	CloseProtocolError = websocket.CloseProtocolError
	CloseAbnormal      = websocket.CloseAbnormalClosure
)

// Transport errors.
var (
	ErrInvalidURL = errors.New("transport: url must use ws, wss, http or https")
	ErrClosed     = errors.New("transport: connection closed")
	ErrStarted    = errors.New("transport: already running")
)

// Events receives connection callbacks. Every callback runs on the
// connection's read goroutine; nil callbacks are skipped.
type Events struct {
	// OnOpen runs once, before the first OnMessage.
	OnOpen func()

	// OnMessage receives each binary or text frame.
	OnMessage func(data []byte)

	// OnClose reports the close code when the peer closes the connection
	// or it fails. It is not called after a local Close or Cancel.
	OnClose func(code int)

	// OnError reports a transport failure. OnClose(CloseAbnormal) follows.
	OnError func(err error)
}

// Conn is an open WebSocket connection.
type Conn struct {
	ws     *websocket.Conn
	config *Config
	logger *slog.Logger

	// mu serializes data frame writes.
	mu      sync.Mutex
	closed  atomic.Bool
	started atomic.Bool
	done    chan struct{}

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

// Dial opens a WebSocket connection. http and https URLs are mapped to ws
// and wss. The returned Conn does not read until Run is called.
func Dial(ctx context.Context, rawURL string, cfg *Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	u, err := WebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: false,
	}
	if u.Scheme == "wss" && cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	for k, v := range cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", u.Redacted(), err)
	}
	ws.SetReadLimit(cfg.MaxMessageSize)

	c := &Conn{
		ws:     ws,
		config: cfg,
		logger: cfg.Logger.With("remote", u.Host),
		done:   make(chan struct{}),
	}
	ws.SetPingHandler(c.handlePing)
	return c, nil
}

// WebSocketURL parses rawURL and maps http(s) schemes to ws(s).
func WebSocketURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

// Run starts the read goroutine. OnOpen fires first, then frames are
// delivered in arrival order.
func (c *Conn) Run(ev Events) error {
	if c.started.Swap(true) {
		return ErrStarted
	}
	go c.readLoop(ev)
	return nil
}

func (c *Conn) readLoop(ev Events) {
	defer close(c.done)

	if ev.OnOpen != nil {
		ev.OnOpen()
	}

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(ev, err)
			return
		}
		c.bytesIn.Add(uint64(len(data)))

		switch mt {
		case websocket.BinaryMessage, websocket.TextMessage:
			if ev.OnMessage != nil {
				ev.OnMessage(data)
			}
		}
	}
}

func (c *Conn) handleReadError(ev Events, err error) {
	// A local Close or Cancel ends the loop silently.
	if c.closed.Swap(true) {
		return
	}
	c.ws.Close()

	code := CloseAbnormal
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != CloseAbnormal {
		code = ce.Code
		c.logger.Debug("peer closed connection", "code", code, "reason", ce.Text)
	} else {
		c.logger.Warn("connection failed", "error", err)
		if ev.OnError != nil {
			ev.OnError(err)
		}
	}
	if ev.OnClose != nil {
		ev.OnClose(code)
	}
}

// handlePing answers protocol pings without surfacing them.
func (c *Conn) handlePing(appData string) error {
	err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteTimeout))
	if err == websocket.ErrCloseSent {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

// Send writes one binary frame.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	c.bytesOut.Add(uint64(len(data)))
	return nil
}

// Close sends a close frame with code and closes the connection. It is
// safe to call more than once.
func (c *Conn) Close(code int) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second),
	)
	c.mu.Unlock()

	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}

// Cancel drops the connection without a close handshake.
func (c *Conn) Cancel() {
	if c.closed.Swap(true) {
		return
	}
	c.ws.Close()
}

// Done is closed when the read goroutine exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// BytesIn returns the number of payload bytes received.
func (c *Conn) BytesIn() uint64 {
	return c.bytesIn.Load()
}

// BytesOut returns the number of payload bytes sent.
func (c *Conn) BytesOut() uint64 {
	return c.bytesOut.Load()
}
