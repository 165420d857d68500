// Package room implements a room session: the join handshake, frame
// dispatch, state mirroring, and the application message channel of one
// joined room.
//
// Every inbound frame and every handler registration runs on a single
// event loop goroutine, so the decoded state is never mutated concurrently
// and handlers observe frames in arrival order. Send, QueueInput and Leave
// may be called from any goroutine.
//
// A Room runs until it leaves: call Leave when done with it.
package room

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/schema"
	"github.com/vango-dev/roomsync/pkg/transport"
)

// Wildcard registers a message handler for every message type.
const Wildcard = "*"

// Status is the room session state.
type Status int32

const (
	StatusConnecting Status = iota
	StatusAwaitingJoin
	StatusJoined
	StatusLeft
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusAwaitingJoin:
		return "awaiting_join"
	case StatusJoined:
		return "joined"
	case StatusLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Transport is the connection a room writes to.
// *transport.Conn satisfies it.
type Transport interface {
	Send(data []byte) error
	Close(code int) error
	Cancel()
}

// Handler types.
type (
	MessageHandler func(msg protocol.Message)
	StateHandler   func(state codec.Value)
	LeaveHandler   func(code int)
	ErrorHandler   func(err error)
)

type leaveMode int

const (
	leaveConsented leaveMode = iota
	leaveServer
	leaveProtocol
	leaveTransport
)

// inbound is one transport event queued for the event loop.
type inbound struct {
	open   bool
	closed bool
	code   int
	data   []byte
	err    error
}

// Room is one room session.
type Room struct {
	id        string
	sessionID string
	config    *Config
	logger    *slog.Logger
	span      trace.Span

	status    atomic.Int32
	leaveCode atomic.Int32
	latency   atomic.Int64

	mu         sync.Mutex // protects transport, token, serializer
	transport  Transport
	token      string
	serializer string

	decoder atomic.Pointer[schema.Decoder]
	state   atomic.Pointer[codec.Value]

	frames chan inbound

	dispatchMu     sync.Mutex
	dispatchQ      []func()
	dispatchClosed bool
	wake           chan struct{}

	inputMu sync.Mutex
	input   *codec.Value

	joinOnce sync.Once
	joinDone chan struct{}
	joinErr  error

	leaveOnce sync.Once
	ended     chan struct{}
	done      chan struct{}

	// Owned by the event loop.
	handlers      map[string][]MessageHandler
	pending       []protocol.Message
	stateHandlers []StateHandler
	leaveHandlers []LeaveHandler
	errorHandlers []ErrorHandler
	lastPing      time.Time
	patches       int
}

// New creates a room session and starts its event loop. Attach a transport
// and feed it Events to connect the room.
func New(id, sessionID string, cfg *Config) *Room {
	cfg = cfg.withDefaults()
	span := cfg.Span
	if span == nil {
		span = noop.Span{}
	}

	r := &Room{
		id:        id,
		sessionID: sessionID,
		config:    cfg,
		logger:    cfg.Logger.With("room_id", id, "session_id", sessionID),
		span:      span,
		frames:    make(chan inbound, cfg.FrameQueueSize),
		wake:      make(chan struct{}, 1),
		joinDone:  make(chan struct{}),
		ended:     make(chan struct{}),
		done:      make(chan struct{}),
		handlers:  make(map[string][]MessageHandler),
	}
	go r.loop()
	return r
}

// Attach sets the transport the room writes to. Attaching to a room that
// has already left cancels t.
func (r *Room) Attach(t Transport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()

	if r.Status() == StatusLeft {
		t.Cancel()
	}
}

// Events returns the transport callbacks that feed this room.
func (r *Room) Events() transport.Events {
	return transport.Events{
		OnOpen:    func() { r.push(inbound{open: true}) },
		OnMessage: func(data []byte) { r.push(inbound{data: data}) },
		OnClose:   func(code int) { r.push(inbound{closed: true, code: code}) },
		OnError:   func(err error) { r.push(inbound{err: err}) },
	}
}

// push hands an event to the loop, blocking while the frame queue is full.
func (r *Room) push(in inbound) {
	select {
	case r.frames <- in:
	case <-r.ended:
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// SessionID returns the session id assigned by the matchmaker.
func (r *Room) SessionID() string { return r.sessionID }

// ReconnectionToken returns the token from the join confirmation.
func (r *Room) ReconnectionToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// SerializerID returns the serializer named in the join confirmation.
func (r *Room) SerializerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serializer
}

// Status returns the current session state.
func (r *Room) Status() Status {
	return Status(r.status.Load())
}

// State returns the latest decoded state snapshot, or Nil before the first
// state frame. The snapshot is immutable.
func (r *Room) State() codec.Value {
	if s := r.state.Load(); s != nil {
		return *s
	}
	return codec.Nil()
}

// Latency returns the last measured heartbeat round trip.
func (r *Room) Latency() time.Duration {
	return time.Duration(r.latency.Load())
}

// Stats returns the decoder counters. It is zero until a schema arrives.
func (r *Room) Stats() schema.StatsSnapshot {
	if d := r.decoder.Load(); d != nil {
		return d.Stats().Snapshot()
	}
	return schema.StatsSnapshot{}
}

// LeaveCode returns the close code the room left with, or 0.
func (r *Room) LeaveCode() int {
	return int(r.leaveCode.Load())
}

// Done is closed once the room has left and its leave handlers have run.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// WaitJoined blocks until the room joins, the server rejects the join with
// an ERROR frame, the connection closes, or ctx ends.
func (r *Room) WaitJoined(ctx context.Context) error {
	select {
	case <-r.joinDone:
		return r.joinErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) resolveJoin(err error) {
	r.joinOnce.Do(func() {
		r.joinErr = err
		close(r.joinDone)
	})
}

// Send writes a ROOM_DATA message. data is converted with codec.FromAny;
// pass a codec.Value to control the encoding. It returns ErrNotConnected
// before the join and ErrLeft after the room has left.
func (r *Room) Send(msgType string, data any) error {
	return r.SendValue(codec.String(msgType), codec.FromAny(data))
}

// SendValue writes a ROOM_DATA message with an explicit type value, which
// may be a string or an integer.
func (r *Room) SendValue(msgType, data codec.Value) error {
	switch r.Status() {
	case StatusJoined:
	case StatusLeft:
		return ErrLeft
	default:
		return ErrNotConnected
	}
	t := r.currentTransport()
	if t == nil {
		return ErrNoTransport
	}
	if err := t.Send(protocol.EncodeRoomData(msgType, data)); err != nil {
		return err
	}
	r.config.Metrics.MessageSent()
	return nil
}

// QueueInput stores data as the pending input. Only the latest input is
// kept; it is sent on the next input tick.
func (r *Room) QueueInput(data any) {
	v := codec.FromAny(data)
	if r.config.InputInterval <= 0 {
		if err := r.Send(r.config.InputType, v); err != nil {
			r.logger.Debug("input dropped", "error", err)
		}
		return
	}
	r.inputMu.Lock()
	r.input = &v
	r.inputMu.Unlock()
}

// OnMessage registers h for messages of msgType, or for every message when
// msgType is Wildcard. Messages that arrived before any handler matched
// them are delivered to h immediately, in arrival order.
func (r *Room) OnMessage(msgType string, h MessageHandler) {
	r.dispatch(func() {
		if r.Status() == StatusLeft {
			return
		}
		r.handlers[msgType] = append(r.handlers[msgType], h)
		r.replayPending(msgType, h)
	})
}

// OnStateChange registers h for state updates. If state has already
// arrived, h receives the current snapshot right away.
func (r *Room) OnStateChange(h StateHandler) {
	r.dispatch(func() {
		if r.Status() == StatusLeft {
			return
		}
		r.stateHandlers = append(r.stateHandlers, h)
		if s := r.state.Load(); s != nil {
			r.safe("state", func() { h(*s) })
		}
	})
}

// OnLeave registers h to run with the close code when the room leaves.
// If the room has already left, h runs immediately.
func (r *Room) OnLeave(h LeaveHandler) {
	if !r.dispatch(func() { r.leaveHandlers = append(r.leaveHandlers, h) }) {
		h(r.LeaveCode())
	}
}

// OnError registers h for ERROR frames sent by the server. Errors are
// *protocol.ServerError values.
func (r *Room) OnError(h ErrorHandler) {
	r.dispatch(func() { r.errorHandlers = append(r.errorHandlers, h) })
}

// Leave sends a leave request and closes the transport. It is safe to call
// more than once and from any goroutine.
func (r *Room) Leave() {
	r.leave(leaveConsented, transport.CloseNormal)
}

func (r *Room) currentTransport() Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

func (r *Room) dispatch(fn func()) bool {
	r.dispatchMu.Lock()
	if r.dispatchClosed {
		r.dispatchMu.Unlock()
		return false
	}
	r.dispatchQ = append(r.dispatchQ, fn)
	r.dispatchMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

func (r *Room) leave(mode leaveMode, code int) {
	r.leaveOnce.Do(func() {
		prev := Status(r.status.Swap(int32(StatusLeft)))
		t := r.currentTransport()

		if t != nil {
			switch mode {
			case leaveConsented:
				if prev == StatusJoined {
					if err := t.Send(protocol.LeaveRequest()); err != nil {
						r.logger.Debug("leave request not sent", "error", err)
					}
				}
				_ = t.Close(transport.CloseNormal)
			case leaveServer, leaveProtocol:
				_ = t.Close(code)
			case leaveTransport:
				t.Cancel()
			}
		}

		r.leaveCode.Store(int32(code))
		r.resolveJoin(&ClosedError{Code: code})
		if prev == StatusJoined {
			r.config.Metrics.RoomLeft()
		}
		r.logger.Info("room left", "code", code, "status", prev.String())
		close(r.ended)
	})
}
