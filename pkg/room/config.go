package room

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/roomsync/pkg/metrics"
)

// Config holds per-room settings.
type Config struct {
	// InputInterval is how often the latest queued input is sent.
	// Zero sends queued input immediately.
	// Default: 33ms (30 per second).
	InputInterval time.Duration

	// InputType is the message type used for queued input.
	// Default: "input".
	InputType string

	// HeartbeatInterval is how often a ping message is sent once joined.
	// Zero disables the heartbeat.
	// Default: 2 seconds.
	HeartbeatInterval time.Duration

	// PingType and PongType name the heartbeat messages.
	// Default: "ping" and "pong".
	PingType string
	PongType string

	// MaxPendingMessages caps messages held for handlers that are not
	// registered yet. The oldest message is dropped when full.
	// Default: 256.
	MaxPendingMessages int

	// FrameQueueSize is the number of inbound frames buffered ahead of
	// the event loop.
	// Default: 256.
	FrameQueueSize int

	// Logger receives room diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives room metrics. Nil disables them.
	Metrics *metrics.Collector

	// Span receives join, error and leave events. The room ends it when
	// it leaves. Nil disables tracing.
	Span trace.Span
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InputInterval:      time.Second / 30,
		InputType:          "input",
		HeartbeatInterval:  2 * time.Second,
		PingType:           "ping",
		PongType:           "pong",
		MaxPendingMessages: 256,
		FrameQueueSize:     256,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		d.Logger = slog.Default()
		return d
	}
	out := *c
	if out.InputType == "" {
		out.InputType = d.InputType
	}
	if out.PingType == "" {
		out.PingType = d.PingType
	}
	if out.PongType == "" {
		out.PongType = d.PongType
	}
	if out.MaxPendingMessages <= 0 {
		out.MaxPendingMessages = d.MaxPendingMessages
	}
	if out.FrameQueueSize <= 0 {
		out.FrameQueueSize = d.FrameQueueSize
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
