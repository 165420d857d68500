package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.yaml.in/yaml/v3"

	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/pkg/recorder"
	"github.com/vango-dev/roomsync/pkg/room"
	"github.com/vango-dev/roomsync/pkg/tokenstore"
	"github.com/vango-dev/roomsync/pkg/transport"
)

const (
	// FileName is the configuration file looked up by Load.
	FileName = "roomsync.yaml"

	// DefaultMetricsNamespace prefixes every exported metric.
	DefaultMetricsNamespace = "roomsync"

	// DefaultTokenPrefix is the Redis key prefix for reconnection tokens.
	DefaultTokenPrefix = "roomsync:token:"
)

// Config is the complete client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Room      RoomConfig      `yaml:"room"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Record    RecordConfig    `yaml:"record"`
	Tokens    TokensConfig    `yaml:"tokens"`

	// path is where the config was loaded from.
	path string
}

// ServerConfig locates the game server.
type ServerConfig struct {
	URL          string        `yaml:"url" env:"ROOMSYNC_SERVER_URL" env-description:"game server base URL (ws, wss, http or https)"`
	HTTPURL      string        `yaml:"http_url,omitempty" env:"ROOMSYNC_SERVER_HTTP_URL" env-description:"matchmaking base URL, derived from url when empty"`
	Origin       string        `yaml:"origin,omitempty" env:"ROOMSYNC_ORIGIN" env-description:"Origin header sent on every request"`
	SessionToken string        `yaml:"session_token,omitempty" env:"ROOMSYNC_SESSION_TOKEN" env-description:"session cookie value"`
	CookieName   string        `yaml:"cookie_name" env:"ROOMSYNC_COOKIE_NAME" env-description:"session cookie name"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"ROOMSYNC_HTTP_TIMEOUT" env-description:"matchmaking request timeout"`
}

// RoomConfig tunes the room session. Zero intervals disable batching and
// heartbeats.
type RoomConfig struct {
	JoinTimeout       time.Duration `yaml:"join_timeout" env:"ROOMSYNC_JOIN_TIMEOUT" env-description:"time allowed for the server to confirm a join"`
	InputInterval     time.Duration `yaml:"input_interval" env:"ROOMSYNC_INPUT_INTERVAL" env-description:"input batching interval, 0 sends immediately"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"ROOMSYNC_HEARTBEAT_INTERVAL" env-description:"ping interval, 0 disables heartbeats"`
	MaxPending        int           `yaml:"max_pending" env:"ROOMSYNC_MAX_PENDING" env-description:"messages buffered per type before a handler exists"`
	FrameQueue        int           `yaml:"frame_queue" env:"ROOMSYNC_FRAME_QUEUE" env-description:"inbound frames buffered ahead of the room loop"`
}

// TransportConfig tunes the WebSocket connection.
type TransportConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout" env:"ROOMSYNC_HANDSHAKE_TIMEOUT" env-description:"websocket handshake timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" env:"ROOMSYNC_WRITE_TIMEOUT" env-description:"per-frame write deadline"`
	ReadBufferSize     int           `yaml:"read_buffer_size" env:"ROOMSYNC_READ_BUFFER_SIZE" env-description:"connection read buffer in bytes"`
	WriteBufferSize    int           `yaml:"write_buffer_size" env:"ROOMSYNC_WRITE_BUFFER_SIZE" env-description:"connection write buffer in bytes"`
	MaxMessageSize     int64         `yaml:"max_message_size" env:"ROOMSYNC_MAX_MESSAGE_SIZE" env-description:"largest accepted frame in bytes"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty" env:"ROOMSYNC_INSECURE_SKIP_VERIFY" env-description:"skip TLS certificate checks"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"ROOMSYNC_LOG_LEVEL" env-description:"debug, info, warn or error"`
	Format string `yaml:"format" env:"ROOMSYNC_LOG_FORMAT" env-description:"text or json"`
}

// MetricsConfig configures the debug listener that serves /metrics.
type MetricsConfig struct {
	Listen    string `yaml:"listen,omitempty" env:"ROOMSYNC_METRICS_LISTEN" env-description:"debug listener address, empty disables it"`
	Namespace string `yaml:"namespace" env:"ROOMSYNC_METRICS_NAMESPACE" env-description:"metric name prefix"`
}

// RecordConfig enables session recording to a directory or an S3 bucket.
type RecordConfig struct {
	Dir             string        `yaml:"dir,omitempty" env:"ROOMSYNC_RECORD_DIR" env-description:"local recording directory"`
	Bucket          string        `yaml:"s3_bucket,omitempty" env:"ROOMSYNC_RECORD_S3_BUCKET" env-description:"S3 bucket for recordings"`
	Prefix          string        `yaml:"s3_prefix,omitempty" env:"ROOMSYNC_RECORD_S3_PREFIX" env-description:"S3 key prefix"`
	Region          string        `yaml:"s3_region,omitempty" env:"ROOMSYNC_RECORD_S3_REGION" env-description:"S3 region"`
	Endpoint        string        `yaml:"s3_endpoint,omitempty" env:"ROOMSYNC_RECORD_S3_ENDPOINT" env-description:"S3-compatible endpoint URL"`
	AccessKeyID     string        `yaml:"s3_access_key_id,omitempty" env:"ROOMSYNC_RECORD_S3_ACCESS_KEY_ID" env-description:"S3 access key"`
	SecretAccessKey string        `yaml:"s3_secret_access_key,omitempty" env:"ROOMSYNC_RECORD_S3_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	FlushInterval   time.Duration `yaml:"flush_interval" env:"ROOMSYNC_RECORD_FLUSH_INTERVAL" env-description:"how often batches are written"`
	MaxBatch        int           `yaml:"max_batch" env:"ROOMSYNC_RECORD_MAX_BATCH" env-description:"records per batch before an early flush"`
}

// TokensConfig selects where reconnection tokens are kept. An empty
// RedisAddr keeps them in memory.
type TokensConfig struct {
	RedisAddr     string        `yaml:"redis_addr,omitempty" env:"ROOMSYNC_TOKENS_REDIS_ADDR" env-description:"Redis address for reconnection tokens"`
	RedisPassword string        `yaml:"redis_password,omitempty" env:"ROOMSYNC_TOKENS_REDIS_PASSWORD" env-description:"Redis password"`
	RedisDB       int           `yaml:"redis_db,omitempty" env:"ROOMSYNC_TOKENS_REDIS_DB" env-description:"Redis database number"`
	Prefix        string        `yaml:"prefix" env:"ROOMSYNC_TOKENS_PREFIX" env-description:"Redis key prefix"`
	TTL           time.Duration `yaml:"ttl" env:"ROOMSYNC_TOKENS_TTL" env-description:"token lifetime"`
}

// New returns a Config populated with defaults.
func New() *Config {
	rd := room.DefaultConfig()
	td := transport.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			CookieName:  "session_token",
			HTTPTimeout: 30 * time.Second,
		},
		Room: RoomConfig{
			JoinTimeout:       15 * time.Second,
			InputInterval:     rd.InputInterval,
			HeartbeatInterval: rd.HeartbeatInterval,
			MaxPending:        rd.MaxPendingMessages,
			FrameQueue:        rd.FrameQueueSize,
		},
		Transport: TransportConfig{
			HandshakeTimeout: td.HandshakeTimeout,
			WriteTimeout:     td.WriteTimeout,
			ReadBufferSize:   td.ReadBufferSize,
			WriteBufferSize:  td.WriteBufferSize,
			MaxMessageSize:   td.MaxMessageSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNamespace,
		},
		Record: RecordConfig{
			FlushInterval: 5 * time.Second,
			MaxBatch:      500,
		},
		Tokens: TokensConfig{
			Prefix: DefaultTokenPrefix,
			TTL:    tokenstore.DefaultTTL,
		},
	}
}

// Load reads roomsync.yaml from dir when present, then applies the
// environment. A missing file is not an error.
func Load(dir string) (*Config, error) {
	if Exists(dir) {
		return LoadFile(filepath.Join(dir, FileName))
	}
	return FromEnv()
}

// LoadFile reads the YAML file at path, then applies the environment.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").WithSource(path)
		}
		return nil, errors.New("E101").WithSource(path).Wrap(err)
	}

	cfg := New()
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, errors.New("E101").
			WithSource(path).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid YAML and durations look like 15s or 2m").
			Wrap(err)
	}
	cfg.path = path
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv returns defaults overridden by ROOMSYNC_* variables.
func FromEnv() (*Config, error) {
	cfg := New()
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.New("E101").WithSource("environment").Wrap(err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Env describes every environment variable Config reads.
func Env() string {
	header := "Environment variables:"
	desc, err := cleanenv.GetDescription(New(), &header)
	if err != nil {
		return header
	}
	return desc
}

// SaveTo writes the configuration as YAML.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New("E101").WithSource(path).Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.New("E101").WithSource(path).Wrap(err)
	}
	c.path = path
	return nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory holding the config file.
func (c *Config) Dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(c.path)
}

// applyDefaults refills fields a file or variable set to an empty value.
// Room intervals are left alone: zero is meaningful there.
func (c *Config) applyDefaults() {
	d := New()
	if c.Server.CookieName == "" {
		c.Server.CookieName = d.Server.CookieName
	}
	if c.Server.HTTPTimeout == 0 {
		c.Server.HTTPTimeout = d.Server.HTTPTimeout
	}
	if c.Room.JoinTimeout == 0 {
		c.Room.JoinTimeout = d.Room.JoinTimeout
	}
	if c.Room.MaxPending == 0 {
		c.Room.MaxPending = d.Room.MaxPending
	}
	if c.Room.FrameQueue == 0 {
		c.Room.FrameQueue = d.Room.FrameQueue
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Record.FlushInterval == 0 {
		c.Record.FlushInterval = d.Record.FlushInterval
	}
	if c.Record.MaxBatch == 0 {
		c.Record.MaxBatch = d.Record.MaxBatch
	}
	if c.Tokens.Prefix == "" {
		c.Tokens.Prefix = d.Tokens.Prefix
	}
	if c.Tokens.TTL == 0 {
		c.Tokens.TTL = d.Tokens.TTL
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate reports the first invalid setting. A missing server URL is
// only an error when requireServer is set, since inspect works offline.
func (c *Config) Validate(requireServer bool) error {
	src := c.path
	if src == "" {
		src = "environment"
	}

	if c.Server.URL == "" {
		if requireServer {
			return errors.New("E102").WithSource(src)
		}
	} else if err := checkURL("server.url", c.Server.URL); err != nil {
		return err.WithSource(src)
	}
	if c.Server.HTTPURL != "" {
		if err := checkURL("server.http_url", c.Server.HTTPURL); err != nil {
			return err.WithSource(src)
		}
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"server.http_timeout", c.Server.HTTPTimeout},
		{"room.join_timeout", c.Room.JoinTimeout},
		{"room.input_interval", c.Room.InputInterval},
		{"room.heartbeat_interval", c.Room.HeartbeatInterval},
		{"transport.handshake_timeout", c.Transport.HandshakeTimeout},
		{"transport.write_timeout", c.Transport.WriteTimeout},
		{"record.flush_interval", c.Record.FlushInterval},
		{"tokens.ttl", c.Tokens.TTL},
	}
	for _, d := range durations {
		if d.d < 0 {
			return errors.New("E104").WithSource(src).
				WithDetail(fmt.Sprintf("%s is %s", d.name, d.d))
		}
	}

	sizes := []struct {
		name string
		n    int64
	}{
		{"room.max_pending", int64(c.Room.MaxPending)},
		{"room.frame_queue", int64(c.Room.FrameQueue)},
		{"transport.read_buffer_size", int64(c.Transport.ReadBufferSize)},
		{"transport.write_buffer_size", int64(c.Transport.WriteBufferSize)},
		{"transport.max_message_size", c.Transport.MaxMessageSize},
		{"record.max_batch", int64(c.Record.MaxBatch)},
	}
	for _, s := range sizes {
		if s.n < 0 {
			return errors.New("E108").WithSource(src).
				WithDetail(fmt.Sprintf("%s is %d", s.name, s.n))
		}
	}

	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("E105").WithSource(src).
			WithDetail(fmt.Sprintf("log.level is %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E106").WithSource(src).
			WithDetail(fmt.Sprintf("log.format is %q", c.Log.Format))
	}

	if c.Record.Dir != "" && c.Record.Bucket != "" {
		return errors.New("E107").WithSource(src).
			WithDetail("record.dir and record.s3_bucket are both set").
			WithSuggestion("Record to a directory or to S3, not both.")
	}
	if c.Record.Bucket == "" && (c.Record.Prefix != "" || c.Record.Endpoint != "") {
		return errors.New("E107").WithSource(src).
			WithDetail("record.s3_prefix or record.s3_endpoint is set without record.s3_bucket")
	}
	if c.Record.Endpoint != "" {
		if u, err := url.Parse(c.Record.Endpoint); err != nil || u.Host == "" {
			return errors.New("E107").WithSource(src).
				WithDetail(fmt.Sprintf("record.s3_endpoint %q is not an absolute URL", c.Record.Endpoint))
		}
	}
	return nil
}

func checkURL(name, raw string) *errors.Error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("E103").WithDetail(fmt.Sprintf("%s %q is not an absolute URL", name, raw))
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		return nil
	}
	return errors.New("E103").
		WithDetail(fmt.Sprintf("%s %q must use ws, wss, http or https", name, raw)).
		WithExample("server:\n  url: wss://game.example.com")
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// LogLevel returns the slog level for Log.Level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

// RoomOptions builds the room session config. Logger, metrics and span are
// left for the caller.
func (c *Config) RoomOptions() *room.Config {
	rc := room.DefaultConfig()
	rc.InputInterval = c.Room.InputInterval
	rc.HeartbeatInterval = c.Room.HeartbeatInterval
	rc.MaxPendingMessages = c.Room.MaxPending
	rc.FrameQueueSize = c.Room.FrameQueue
	return rc
}

// TransportOptions builds the transport config. Origin and cookies are
// added by the matchmaking client.
func (c *Config) TransportOptions() *transport.Config {
	return &transport.Config{
		HandshakeTimeout:   c.Transport.HandshakeTimeout,
		WriteTimeout:       c.Transport.WriteTimeout,
		ReadBufferSize:     c.Transport.ReadBufferSize,
		WriteBufferSize:    c.Transport.WriteBufferSize,
		MaxMessageSize:     c.Transport.MaxMessageSize,
		InsecureSkipVerify: c.Transport.InsecureSkipVerify,
		Header:             http.Header{},
	}
}

// S3Options returns the S3 sink settings, or false when recording to S3
// is not configured.
func (c *Config) S3Options() (recorder.S3Config, bool) {
	if c.Record.Bucket == "" {
		return recorder.S3Config{}, false
	}
	return recorder.S3Config{
		Bucket:          c.Record.Bucket,
		Prefix:          c.Record.Prefix,
		Region:          c.Record.Region,
		Endpoint:        c.Record.Endpoint,
		AccessKeyID:     c.Record.AccessKeyID,
		SecretAccessKey: c.Record.SecretAccessKey,
	}, true
}

// Recording reports whether any recording destination is set.
func (c *Config) Recording() bool {
	return c.Record.Dir != "" || c.Record.Bucket != ""
}

// Exists reports whether dir holds a roomsync.yaml.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil && !info.IsDir()
}

// Find walks up from startDir looking for roomsync.yaml and returns the
// directory holding it.
func Find(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for {
		if Exists(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the nearest roomsync.yaml at or above the
// working directory, or the environment alone when there is none.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return FromEnv()
	}
	if dir, ok := Find(wd); ok {
		return Load(dir)
	}
	return FromEnv()
}
