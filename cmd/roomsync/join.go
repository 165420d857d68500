package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/config"
	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/matchmaking"
	"github.com/vango-dev/roomsync/pkg/metrics"
	"github.com/vango-dev/roomsync/pkg/protocol"
	"github.com/vango-dev/roomsync/pkg/recorder"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/tokenstore"
)

type joinOptions struct {
	server   string
	name     string
	options  []string
	send     []string
	duration time.Duration
	listen   string
	record   string
}

func joinCmd(g *globalFlags) *cobra.Command {
	opts := &joinOptions{}

	cmd := &cobra.Command{
		Use:   "join <room-type>",
		Short: "Join or create a room and follow its state",
		Long: `Reserve a seat in a room of the given type, join it, and print every
state change and message as one JSON object per line.

The session ends on Ctrl-C, when --duration elapses, or when the server
closes the room.

Examples:
  roomsync join lobby --server ws://localhost:2567
  roomsync join ranked --name ada -o mode=ranked -o teamSize=2
  roomsync join lobby --send 'chat={"text":"hi"}' --duration 10s
  roomsync join lobby --listen 127.0.0.1:9464 --record ./recordings`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || args[0] == "" {
				return errors.New("E120")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, cfg, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "Game server URL (overrides server.url)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Display name sent with the join options")
	cmd.Flags().StringArrayVarP(&opts.options, "option", "o", nil, "Join option key=value; JSON values are decoded")
	cmd.Flags().StringArrayVar(&opts.send, "send", nil, "Message type=value to send once joined")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Leave after this long (0 waits for Ctrl-C)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Debug HTTP address (overrides metrics.listen)")
	cmd.Flags().StringVar(&opts.record, "record", "", "Record the session to this directory (overrides record.dir)")
	return cmd
}

func runJoin(ctx context.Context, cfg *config.Config, roomType string, opts *joinOptions, stdout, stderr io.Writer) error {
	if opts.server != "" {
		cfg.Server.URL = opts.server
	}
	if opts.listen != "" {
		cfg.Metrics.Listen = opts.listen
	}
	if opts.record != "" {
		cfg.Record.Dir = opts.record
		cfg.Record.Bucket = ""
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	joinOpts, err := parseOptions(opts.options)
	if err != nil {
		return err
	}
	if opts.name != "" {
		joinOpts["name"] = opts.name
	}
	sends, err := parseSends(opts.send)
	if err != nil {
		return err
	}

	clientID := uuid.NewString()
	logger := newLogger(cfg, stderr).With("client_id", clientID)

	reg := prometheus.NewRegistry()
	collector := metrics.New(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithRegistry(reg),
		metrics.WithConstLabels(prometheus.Labels{"client_id": clientID}),
	)

	tokens, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer tokens.Close()

	rec, err := openRecorder(cfg, logger)
	if err != nil {
		return err
	}
	recDone := make(chan error, 1)
	recCtx, stopRec := context.WithCancel(context.Background())
	defer stopRec()
	if rec != nil {
		go func() { recDone <- rec.Run(recCtx) }()
	} else {
		close(recDone)
	}

	rcfg := cfg.RoomOptions()
	rcfg.Logger = logger
	tcfg := cfg.TransportOptions()
	tcfg.Logger = logger
	client, err := matchmaking.New(&matchmaking.Config{
		ServerURL:    cfg.Server.URL,
		HTTPURL:      cfg.Server.HTTPURL,
		Origin:       cfg.Server.Origin,
		SessionToken: cfg.Server.SessionToken,
		CookieName:   cfg.Server.CookieName,
		HTTPTimeout:  cfg.Server.HTTPTimeout,
		JoinTimeout:  cfg.Room.JoinTimeout,
		Transport:    tcfg,
		Room:         rcfg,
		Tokens:       tokens,
		Logger:       logger,
		Metrics:      collector,
	})
	if err != nil {
		return joinFailure(err, cfg.Server.URL)
	}

	logger.Info("joining", "room_type", roomType, "server", cfg.Server.URL)
	rm, err := client.JoinOrCreate(ctx, roomType, joinOpts)
	if err != nil {
		return joinFailure(err, cfg.Server.URL)
	}
	logger.Info("joined", "room_id", rm.ID(), "session_id", rm.SessionID(), "serializer", rm.SerializerID())

	follow(rm, newEventWriter(stdout), rec)

	if cfg.Metrics.Listen != "" {
		stopDebug, err := serveDebug(cfg.Metrics.Listen, newDebugRouter(reg, rm), logger)
		if err != nil {
			rm.Leave()
			return err
		}
		defer stopDebug()
	}

	for _, s := range sends {
		if err := rm.SendValue(codec.String(s.typ), s.data); err != nil {
			logger.Warn("send failed", "type", s.typ, "error", err)
		}
	}

	var timeout <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info("interrupted, leaving")
	case <-timeout:
		logger.Info("duration elapsed, leaving")
	case <-rm.Done():
	}
	rm.Leave()

	select {
	case <-rm.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("room did not close in time")
	}
	logger.Info("left", "room_id", rm.ID(), "code", rm.LeaveCode())

	stopRec()
	if err := <-recDone; err != nil {
		logger.Error("final recording flush failed", "error", err)
	}
	return nil
}

// parseOptions turns key=value pairs into join options. Values that parse
// as JSON keep their JSON type; anything else is a string.
func parseOptions(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, errors.New("E123").WithDetail(fmt.Sprintf("%q has no key=value form", p))
		}
		out[key] = parseValue(raw)
	}
	return out, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

type outgoing struct {
	typ  string
	data codec.Value
}

func parseSends(pairs []string) ([]outgoing, error) {
	out := make([]outgoing, 0, len(pairs))
	for _, p := range pairs {
		typ, raw, ok := strings.Cut(p, "=")
		if typ == "" {
			return nil, errors.New("E123").
				WithDetail(fmt.Sprintf("--send %q has no message type", p)).
				WithSuggestion("Messages take the form type=value, e.g. --send chat=hello.")
		}
		data := codec.Nil()
		if ok {
			data = codec.FromAny(parseValue(raw))
		}
		out = append(out, outgoing{typ: typ, data: data})
	}
	return out, nil
}

// joinFailure maps a matchmaking error onto a CLI error code.
func joinFailure(err error, server string) error {
	var me *matchmaking.Error
	if !stderrors.As(err, &me) {
		return errors.FromError(err, "E150").WithSource(server)
	}
	var e *errors.Error
	switch me.Kind {
	case matchmaking.KindInvalidURL:
		e = errors.New("E103")
	case matchmaking.KindStatus:
		e = errors.New("E140").WithDetail(fmt.Sprintf("status %d: %s", me.Status, me.Body))
	case matchmaking.KindMalformed, matchmaking.KindMissingField:
		e = errors.New("E141")
	case matchmaking.KindRejected:
		e = errors.New("E151")
		var se *protocol.ServerError
		if stderrors.As(err, &se) {
			e.WithDetail(fmt.Sprintf("code %d: %s", se.Code, se.Message))
		}
	case matchmaking.KindTimeout:
		e = errors.New("E152")
	case matchmaking.KindClosed:
		e = errors.New("E153")
	default:
		e = errors.New("E150")
	}
	return e.WithSource(server).Wrap(err)
}

func openTokenStore(ctx context.Context, cfg *config.Config) (tokenstore.Store, error) {
	if cfg.Tokens.RedisAddr == "" {
		return tokenstore.NewMemoryStore(tokenstore.WithMemoryTTL(cfg.Tokens.TTL)), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Tokens.RedisAddr,
		Password: cfg.Tokens.RedisPassword,
		DB:       cfg.Tokens.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.New("E154").WithSource(cfg.Tokens.RedisAddr).Wrap(err)
	}
	return tokenstore.NewRedisStore(client,
		tokenstore.WithRedisPrefix(cfg.Tokens.Prefix),
		tokenstore.WithRedisTTL(cfg.Tokens.TTL),
	), nil
}

// openRecorder returns nil when recording is off.
func openRecorder(cfg *config.Config, logger *slog.Logger) (*recorder.Recorder, error) {
	if !cfg.Recording() {
		return nil, nil
	}
	var sink recorder.Sink
	if s3cfg, ok := cfg.S3Options(); ok {
		sink = recorder.NewS3Sink(recorder.NewS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix)
	} else {
		fs, err := recorder.NewFileSink(cfg.Record.Dir)
		if err != nil {
			return nil, errors.New("E107").WithSource(cfg.Record.Dir).Wrap(err)
		}
		sink = fs
	}
	return recorder.New(sink, &recorder.Config{
		FlushInterval: cfg.Record.FlushInterval,
		MaxBatch:      cfg.Record.MaxBatch,
		Logger:        logger.With("component", "recorder"),
	}), nil
}

// serveDebug starts the debug listener. The returned func shuts it down.
func serveDebug(addr string, h http.Handler, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New("E124").WithSource(addr).Wrap(err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("debug listener stopped", "error", err)
		}
	}()
	logger.Info("debug listener", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// event is one line of join output.
type event struct {
	Time  time.Time   `json:"time"`
	Event string      `json:"event"`
	Room  string      `json:"roomId"`
	Type  string      `json:"type,omitempty"`
	Code  int         `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
	Data  codec.Value `json:"data"`
}

type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventWriter(w io.Writer) *eventWriter {
	return &eventWriter{enc: json.NewEncoder(w)}
}

func (w *eventWriter) write(ev event) {
	ev.Time = time.Now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(ev)
}

// follow prints every state change, message, server error and the leave
// of rm, and records them when rec is set. Printing and recording share one
// set of handlers so messages queued before registration reach both.
func follow(rm *room.Room, w *eventWriter, rec *recorder.Recorder) {
	id := rm.ID()
	add := func(r recorder.Record) {
		if rec != nil {
			r.RoomID = id
			rec.Add(r)
		}
	}
	rm.OnStateChange(func(state codec.Value) {
		w.write(event{Event: "state", Room: id, Data: state})
		add(recorder.Record{Kind: recorder.KindState, Data: state})
	})
	rm.OnMessage(room.Wildcard, func(msg protocol.Message) {
		w.write(event{Event: "message", Room: id, Type: msg.Type, Data: msg.Data})
		add(recorder.Record{Kind: recorder.KindMessage, Type: msg.Type, Data: msg.Data})
	})
	rm.OnError(func(err error) {
		ev := event{Event: "error", Room: id, Error: err.Error()}
		var se *protocol.ServerError
		if stderrors.As(err, &se) {
			ev.Code = se.Code
			ev.Error = se.Message
		}
		w.write(ev)
		add(recorder.Record{Kind: recorder.KindError, Code: ev.Code, Error: ev.Error})
	})
	rm.OnLeave(func(code int) {
		w.write(event{Event: "leave", Room: id, Code: code})
		add(recorder.Record{Kind: recorder.KindLeave, Code: code})
	})
}
