package room

import (
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/schema"
	"github.com/vango-dev/roomsync/pkg/transport"
)

// loop processes transport events, dispatched registrations and timers
// until the room leaves.
func (r *Room) loop() {
	defer close(r.done)

	var inputC, pingC <-chan time.Time
	if r.config.InputInterval > 0 {
		t := time.NewTicker(r.config.InputInterval)
		defer t.Stop()
		inputC = t.C
	}
	if r.config.HeartbeatInterval > 0 {
		t := time.NewTicker(r.config.HeartbeatInterval)
		defer t.Stop()
		pingC = t.C
	}

	for {
		select {
		case in := <-r.frames:
			r.handleInbound(in)

		case <-r.wake:
			r.runDispatch()

		case <-inputC:
			r.flushInput()

		case <-pingC:
			r.sendPing()

		case <-r.ended:
			r.finish()
			return
		}
	}
}

func (r *Room) runDispatch() {
	r.dispatchMu.Lock()
	q := r.dispatchQ
	r.dispatchQ = nil
	r.dispatchMu.Unlock()

	for _, fn := range q {
		r.safe("dispatch", fn)
	}
}

// finish runs remaining registrations, then the leave handlers. Message
// and state registrations queued at this point deliver nothing.
func (r *Room) finish() {
	r.dispatchMu.Lock()
	q := r.dispatchQ
	r.dispatchQ = nil
	r.dispatchClosed = true
	r.dispatchMu.Unlock()

	for _, fn := range q {
		r.safe("dispatch", fn)
	}

	code := r.LeaveCode()
	r.span.AddEvent("left", trace.WithAttributes(attribute.Int("roomsync.close_code", code)))
	r.span.End()

	for _, h := range r.leaveHandlers {
		r.safe("leave", func() { h(code) })
	}
	r.config.Metrics.SetPending(0)
}

func (r *Room) handleInbound(in inbound) {
	if r.Status() == StatusLeft {
		return
	}

	switch {
	case in.open:
		r.status.CompareAndSwap(int32(StatusConnecting), int32(StatusAwaitingJoin))
		r.logger.Debug("transport open")

	case in.err != nil:
		r.logger.Warn("transport error", "error", in.err)
		r.config.Metrics.TransportError()
		r.span.RecordError(in.err)

	case in.closed:
		r.logger.Info("transport closed", "code", in.code)
		r.leave(leaveTransport, in.code)

	default:
		r.handleFrame(in.data)
	}
}

func (r *Room) handleFrame(data []byte) {
	code, payload, err := protocol.DecodeFrame(data)
	if err != nil {
		r.logger.Debug("frame dropped", "error", err)
		return
	}
	r.config.Metrics.FrameReceived(code.String(), len(data))

	switch code {
	case protocol.CodeHandshake:
		r.handleHandshake(payload)
	case protocol.CodeJoinRoom:
		r.handleJoin(payload)
	case protocol.CodeError:
		r.handleServerError(payload)
	case protocol.CodeLeaveRoom:
		r.logger.Info("server requested leave")
		r.leave(leaveServer, transport.CloseNormal)
	case protocol.CodeRoomState, protocol.CodeRoomDataSchema:
		r.applyState(payload, true)
	case protocol.CodeRoomStatePatch:
		r.applyState(payload, false)
	case protocol.CodeRoomData:
		r.handleRoomData(payload)
	default:
		r.logger.Debug("unknown frame", "code", code.String(), "size", len(payload))
	}
}

func (r *Room) handleJoin(payload []byte) {
	if r.Status() == StatusJoined {
		r.logger.Warn("duplicate join confirmation ignored")
		return
	}

	jc, err := protocol.ParseJoin(payload)
	if err != nil {
		r.logger.Error("join confirmation rejected", "error", err)
		r.resolveJoin(&ProtocolError{Op: "join", Err: err})
		r.leave(leaveProtocol, transport.CloseProtocolError)
		return
	}

	r.mu.Lock()
	r.token = jc.ReconnectionToken
	r.serializer = jc.SerializerID
	r.mu.Unlock()

	if jc.SerializerID == protocol.SerializerSchema && len(jc.Handshake) > 0 {
		r.loadSchema(jc.Handshake)
	}

	if t := r.currentTransport(); t != nil {
		if err := t.Send(protocol.JoinAck()); err != nil {
			r.logger.Warn("join ack failed", "error", err)
		}
	}

	if !r.status.CompareAndSwap(int32(StatusAwaitingJoin), int32(StatusJoined)) &&
		!r.status.CompareAndSwap(int32(StatusConnecting), int32(StatusJoined)) {
		r.logger.Debug("join confirmation ignored", "status", r.Status().String())
		return
	}
	r.config.Metrics.RoomJoined()
	r.span.AddEvent("joined", trace.WithAttributes(
		attribute.String("roomsync.room_id", r.id),
		attribute.String("roomsync.serializer", jc.SerializerID),
	))
	r.logger.Info("room joined", "serializer", jc.SerializerID)
	r.resolveJoin(nil)
}

// handleHandshake loads a schema sent outside the join confirmation. A
// schema that is already loaded is kept.
func (r *Room) handleHandshake(payload []byte) {
	if r.decoder.Load() != nil {
		r.logger.Debug("handshake ignored, schema already loaded")
		return
	}
	r.loadSchema(payload)
}

func (r *Room) loadSchema(data []byte) {
	s, format, err := schema.ParseHandshake(data)
	if err != nil {
		r.logger.Warn("handshake rejected, state will not be decoded", "error", err)
		r.config.Metrics.DecodeFailed("handshake")
		return
	}
	r.decoder.Store(schema.NewDecoder(s))
	r.logger.Debug("schema loaded",
		"format", format.String(),
		"types", len(s.Types),
		"root_type", s.RootType)
}

func (r *Room) handleServerError(payload []byte) {
	se := protocol.DecodeServerError(payload)
	r.logger.Warn("server error", "code", se.Code, "message", se.Message)
	r.span.RecordError(se)
	r.span.SetStatus(codes.Error, se.Message)

	if r.Status() != StatusJoined {
		r.resolveJoin(se)
	}
	for _, h := range r.errorHandlers {
		r.safe("error", func() { h(se) })
	}
}

func (r *Room) applyState(payload []byte, full bool) {
	dec := r.decoder.Load()
	if dec == nil {
		r.logger.Debug("state dropped, no schema")
		r.config.Metrics.DecodeFailed("no_schema")
		return
	}

	kind := "patch"
	var res schema.Result
	if full {
		kind = "full"
		res = dec.ApplyFullState(payload)
	} else {
		res = dec.ApplyPatch(payload)
		r.patches++
		if r.patches <= 3 {
			r.logger.Debug("patch applied", "n", r.patches, "size", len(payload), "ops", res.Ops)
		}
	}

	refs := dec.Refs()
	r.config.Metrics.StateApplied(kind, res.Mismatches, res.UnknownRefs, res.Stalled, refs)
	if res.Mismatches > 0 || res.UnknownRefs > 0 || res.Stalled {
		r.logger.Warn("state resynchronized",
			"kind", kind,
			"mismatches", res.Mismatches,
			"unknown_refs", res.UnknownRefs,
			"stalled", res.Stalled,
			"first_mismatch", res.FirstMismatch)
	}

	state := dec.State()
	r.state.Store(&state)
	for _, h := range r.stateHandlers {
		r.safe("state", func() { h(state) })
	}
}

func (r *Room) handleRoomData(payload []byte) {
	msg, err := protocol.DecodeRoomData(payload)
	if err != nil {
		r.logger.Warn("room data dropped", "error", err)
		r.config.Metrics.MessageHandled("malformed")
		return
	}

	if msg.Type == r.config.PongType {
		r.recordPong()
		r.deliver(msg, false)
		return
	}
	r.deliver(msg, true)
}

// deliver runs the handlers for msg. Without a matching handler the
// message is queued when queue is set.
func (r *Room) deliver(msg protocol.Message, queue bool) {
	typed := r.handlers[msg.Type]
	wild := r.handlers[Wildcard]
	if len(typed) == 0 && len(wild) == 0 {
		if !queue {
			return
		}
		if len(r.pending) >= r.config.MaxPendingMessages {
			dropped := r.pending[0]
			r.pending = r.pending[1:]
			r.logger.Warn("pending message dropped", "type", dropped.Type)
			r.config.Metrics.MessageHandled("dropped")
		}
		r.pending = append(r.pending, msg)
		r.config.Metrics.MessageHandled("queued")
		r.config.Metrics.SetPending(len(r.pending))
		return
	}

	for _, h := range typed {
		r.safe("message", func() { h(msg) })
	}
	for _, h := range wild {
		r.safe("message", func() { h(msg) })
	}
	r.config.Metrics.MessageHandled("handled")
}

// replayPending delivers queued messages matching msgType to h and removes
// them from the queue.
func (r *Room) replayPending(msgType string, h MessageHandler) {
	if len(r.pending) == 0 {
		return
	}
	kept := r.pending[:0]
	var replay []protocol.Message
	for _, msg := range r.pending {
		if msgType == Wildcard || msg.Type == msgType {
			replay = append(replay, msg)
			continue
		}
		kept = append(kept, msg)
	}
	r.pending = kept
	r.config.Metrics.SetPending(len(r.pending))

	for _, msg := range replay {
		r.safe("message", func() { h(msg) })
		r.config.Metrics.MessageHandled("replayed")
	}
}

func (r *Room) flushInput() {
	r.inputMu.Lock()
	in := r.input
	r.input = nil
	r.inputMu.Unlock()

	if in == nil {
		return
	}
	if err := r.SendValue(codec.String(r.config.InputType), *in); err != nil {
		r.logger.Debug("input dropped", "error", err)
	}
}

func (r *Room) sendPing() {
	if r.Status() != StatusJoined {
		return
	}
	now := time.Now()
	ping := codec.Map(map[string]codec.Value{
		"timestamp": codec.Float(float64(now.UnixNano()) / float64(time.Second)),
	})
	if err := r.SendValue(codec.String(r.config.PingType), ping); err != nil {
		r.logger.Debug("ping failed", "error", err)
		return
	}
	r.lastPing = now
}

func (r *Room) recordPong() {
	if r.lastPing.IsZero() {
		return
	}
	rtt := time.Since(r.lastPing)
	r.lastPing = time.Time{}
	r.latency.Store(int64(rtt))
	r.config.Metrics.ObserveLatency(rtt)
}

// safe runs fn, recovering a handler panic so the loop keeps running.
func (r *Room) safe(kind string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panic",
				"handler", kind,
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
