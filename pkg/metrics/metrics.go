// Package metrics exposes Prometheus collectors for room sessions:
// frame traffic, state decode health, heartbeat latency and join outcomes.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "roomsync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for join duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "roomsync",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the room session metrics.
type Collector struct {
	framesReceived  *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	messagesSent    prometheus.Counter
	messagesHandled *prometheus.CounterVec
	pendingMessages prometheus.Gauge
	stateApplied    *prometheus.CounterVec
	decodeIssues    *prometheus.CounterVec
	liveRefs        prometheus.Gauge
	latency         prometheus.Gauge
	joins           *prometheus.HistogramVec
	activeRooms     prometheus.Gauge
	transportErrors prometheus.Counter
}

// New registers the collectors with the configured registry.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		framesReceived:  counterVec("frames_received_total", "Frames received by protocol code", "code"),
		bytesReceived:   counter("bytes_received_total", "Frame bytes received"),
		messagesSent:    counter("messages_sent_total", "Frames sent to the server"),
		messagesHandled: counterVec("messages_handled_total", "Application messages by outcome", "outcome"),
		pendingMessages: gauge("pending_messages", "Application messages waiting for a handler"),
		stateApplied:    counterVec("state_applied_total", "State frames applied by kind", "kind"),
		decodeIssues:    counterVec("decode_issues_total", "State decode problems by kind", "kind"),
		liveRefs:        gauge("live_refs", "Refs in the most recently updated replica"),
		latency:         gauge("heartbeat_latency_seconds", "Last measured heartbeat round trip"),
		joins: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "join_duration_seconds",
			Help:        "Time from matchmaking request to join outcome",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"outcome"}),
		activeRooms:     gauge("active_rooms", "Rooms currently joined"),
		transportErrors: counter("transport_errors_total", "Transport failures"),
	}
}

// FrameReceived records one inbound frame.
func (c *Collector) FrameReceived(code string, size int) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(code).Inc()
	c.bytesReceived.Add(float64(size))
}

// MessageSent records one outbound frame.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Inc()
}

// MessageHandled records an application message outcome: "dispatched",
// "queued", "replayed" or "dropped".
func (c *Collector) MessageHandled(outcome string) {
	if c == nil {
		return
	}
	c.messagesHandled.WithLabelValues(outcome).Inc()
}

// SetPending records the size of the unhandled message queue.
func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.pendingMessages.Set(float64(n))
}

// StateApplied records one decoded state frame. kind is "full" or "patch".
func (c *Collector) StateApplied(kind string, mismatches, unknownRefs int, stalled bool, refs int) {
	if c == nil {
		return
	}
	c.stateApplied.WithLabelValues(kind).Inc()
	if mismatches > 0 {
		c.decodeIssues.WithLabelValues("mismatch").Add(float64(mismatches))
	}
	if unknownRefs > 0 {
		c.decodeIssues.WithLabelValues("unknown_ref").Add(float64(unknownRefs))
	}
	if stalled {
		c.decodeIssues.WithLabelValues("stall").Inc()
	}
	c.liveRefs.Set(float64(refs))
}

// DecodeFailed records a frame that could not be decoded at all.
func (c *Collector) DecodeFailed(kind string) {
	if c == nil {
		return
	}
	c.decodeIssues.WithLabelValues(kind).Inc()
}

// ObserveLatency records a heartbeat round trip.
func (c *Collector) ObserveLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.latency.Set(d.Seconds())
}

// ObserveJoin records how long a join took and how it ended.
func (c *Collector) ObserveJoin(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.joins.WithLabelValues(outcome).Observe(d.Seconds())
}

// RoomJoined increments the active room gauge.
func (c *Collector) RoomJoined() {
	if c == nil {
		return
	}
	c.activeRooms.Inc()
}

// RoomLeft decrements the active room gauge.
func (c *Collector) RoomLeft() {
	if c == nil {
		return
	}
	c.activeRooms.Dec()
}

// TransportError records a transport failure.
func (c *Collector) TransportError() {
	if c == nil {
		return
	}
	c.transportErrors.Inc()
}
