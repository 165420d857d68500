// Package recorder captures a room's state snapshots and messages as JSON
// Lines batches and stores them in a Sink.
package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/room"
)

// Record kinds.
const (
	KindState   = "state"
	KindMessage = "message"
	KindError   = "error"
	KindLeave   = "leave"
)

// Record is one line of a batch.
type Record struct {
	ID     string      `json:"id"`
	Time   time.Time   `json:"time"`
	RoomID string      `json:"roomId"`
	Kind   string      `json:"kind"`
	Type   string      `json:"type,omitempty"`
	Code   int         `json:"code,omitempty"`
	Error  string      `json:"error,omitempty"`
	Data   codec.Value `json:"data"`
}

// Config configures a Recorder.
type Config struct {
	// FlushInterval is how often buffered records are written.
	// Default: 5 seconds.
	FlushInterval time.Duration

	// MaxBatch flushes early once this many records are buffered.
	// Default: 500.
	MaxBatch int

	// Logger receives flush failures.
	// Default: slog.Default().
	Logger *slog.Logger
}

// Recorder buffers records and writes them to a Sink in batches.
type Recorder struct {
	sink   Sink
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	buf    []Record
	closed bool

	flushCh chan struct{}
	now     func() time.Time
}

// New returns a Recorder writing to sink.
func New(sink Sink, cfg *Config) *Recorder {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Recorder{
		sink:    sink,
		config:  c,
		logger:  c.Logger,
		flushCh: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Add buffers rec, filling ID and Time when unset. It never blocks on the
// sink.
func (r *Recorder) Add(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = r.now().UTC()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, rec)
	full := len(r.buf) >= r.config.MaxBatch
	r.mu.Unlock()

	if full {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered records.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Attach records every state change, message, server error and the leave
// of rm.
func (r *Recorder) Attach(rm *room.Room) {
	id := rm.ID()
	rm.OnStateChange(func(state codec.Value) {
		r.Add(Record{RoomID: id, Kind: KindState, Data: state})
	})
	rm.OnMessage(room.Wildcard, func(msg protocol.Message) {
		r.Add(Record{RoomID: id, Kind: KindMessage, Type: msg.Type, Data: msg.Data})
	})
	rm.OnError(func(err error) {
		rec := Record{RoomID: id, Kind: KindError, Error: err.Error()}
		if se, ok := err.(*protocol.ServerError); ok {
			rec.Code = se.Code
		}
		r.Add(rec)
	})
	rm.OnLeave(func(code int) {
		r.Add(Record{RoomID: id, Kind: KindLeave, Code: code})
	})
}

// Flush writes buffered records as one batch. Records are grouped per
// room; each group becomes one object named
// <roomID>/<unix-millis>-<batch-id>.jsonl.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	groups := make(map[string]*bytes.Buffer)
	var order []string
	for _, rec := range batch {
		buf, ok := groups[rec.RoomID]
		if !ok {
			buf = &bytes.Buffer{}
			groups[rec.RoomID] = buf
			order = append(order, rec.RoomID)
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("recorder: encode record %s: %w", rec.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	stamp := r.now().UnixMilli()
	for _, roomID := range order {
		dir := roomID
		if dir == "" {
			dir = "unknown"
		}
		name := fmt.Sprintf("%s/%d-%s.jsonl", dir, stamp, uuid.NewString())
		if err := r.sink.Put(ctx, name, groups[roomID].Bytes()); err != nil {
			return err
		}
		r.logger.Debug("batch written", "name", name, "bytes", groups[roomID].Len())
	}
	return nil
}

// Run flushes on every interval and whenever a batch fills, until ctx
// ends. It then flushes once more and stops accepting records.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flushLogged(ctx)
		case <-r.flushCh:
			r.flushLogged(ctx)
		case <-ctx.Done():
			return r.Close(context.Background())
		}
	}
}

func (r *Recorder) flushLogged(ctx context.Context) {
	if err := r.Flush(ctx); err != nil {
		r.logger.Error("recorder flush failed", "error", err)
	}
}

// Close flushes the remaining records and stops accepting new ones.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.Flush(ctx)
}
