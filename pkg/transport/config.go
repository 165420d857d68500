package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds transport settings.
type Config struct {
	// HandshakeTimeout bounds the WebSocket opening handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout is the deadline for each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadBufferSize and WriteBufferSize size the connection buffers.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize caps incoming frames. Larger frames fail the
	// connection.
	// Default: 16MB.
	MaxMessageSize int64

	// Origin, when set, is sent as the Origin header.
	Origin string

	// Header carries extra request headers, e.g. a session cookie.
	Header http.Header

	// InsecureSkipVerify disables TLS certificate checks for wss URLs.
	// Default: false.
	InsecureSkipVerify bool

	// Logger receives connection diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   16 * 1024 * 1024,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		d.Logger = slog.Default()
		return d
	}
	out := *c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = d.HandshakeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
