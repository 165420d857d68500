package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/roomsync/internal/errors"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Room.JoinTimeout != 15*time.Second {
		t.Errorf("Room.JoinTimeout = %s, want 15s", cfg.Room.JoinTimeout)
	}
	if cfg.Room.HeartbeatInterval != 2*time.Second {
		t.Errorf("Room.HeartbeatInterval = %s, want 2s", cfg.Room.HeartbeatInterval)
	}
	if cfg.Server.CookieName != "session_token" {
		t.Errorf("Server.CookieName = %q", cfg.Server.CookieName)
	}
	if cfg.Tokens.Prefix != DefaultTokenPrefix {
		t.Errorf("Tokens.Prefix = %q", cfg.Tokens.Prefix)
	}
	if err := cfg.Validate(false); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if err := cfg.Validate(true); errors.CodeOf(err) != "E102" {
		t.Errorf("Validate(true) = %v, want E102", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  url: wss://game.example.test
  origin: https://play.example.test
room:
  join_timeout: 3s
  input_interval: 0s
  max_pending: 16
log:
  level: DEBUG
  format: json
tokens:
  redis_addr: localhost:6379
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.URL != "wss://game.example.test" || cfg.Server.Origin != "https://play.example.test" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Room.JoinTimeout != 3*time.Second {
		t.Errorf("Room.JoinTimeout = %s, want 3s", cfg.Room.JoinTimeout)
	}
	if cfg.Room.InputInterval != 0 {
		t.Errorf("Room.InputInterval = %s, want 0", cfg.Room.InputInterval)
	}
	if cfg.Room.HeartbeatInterval != 2*time.Second {
		t.Errorf("Room.HeartbeatInterval = %s, want default 2s", cfg.Room.HeartbeatInterval)
	}
	if cfg.Room.MaxPending != 16 {
		t.Errorf("Room.MaxPending = %d, want 16", cfg.Room.MaxPending)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Tokens.RedisAddr != "localhost:6379" || cfg.Tokens.Prefix != DefaultTokenPrefix {
		t.Errorf("Tokens = %+v", cfg.Tokens)
	}
	if cfg.Path() != path || cfg.Dir() != dir {
		t.Errorf("Path() = %q, Dir() = %q", cfg.Path(), cfg.Dir())
	}
	if err := cfg.Validate(true); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	if errors.CodeOf(err) != "E100" {
		t.Errorf("missing file error = %v, want E100", err)
	}

	path := writeConfig(t, dir, "server: [unclosed\n")
	_, err = LoadFile(path)
	if errors.CodeOf(err) != "E101" {
		t.Errorf("bad yaml error = %v, want E101", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  url: ws://from-file:2567\nroom:\n  join_timeout: 3s\n")
	t.Setenv("ROOMSYNC_SERVER_URL", "wss://from-env.example.test")
	t.Setenv("ROOMSYNC_SESSION_TOKEN", "secret")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "wss://from-env.example.test" {
		t.Errorf("Server.URL = %q, want env value", cfg.Server.URL)
	}
	if cfg.Server.SessionToken != "secret" {
		t.Errorf("Server.SessionToken = %q", cfg.Server.SessionToken)
	}
	if cfg.Room.JoinTimeout != 3*time.Second {
		t.Errorf("Room.JoinTimeout = %s, want file value", cfg.Room.JoinTimeout)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("ROOMSYNC_HEARTBEAT_INTERVAL", "500ms")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
	if cfg.Room.HeartbeatInterval != 500*time.Millisecond {
		t.Errorf("Room.HeartbeatInterval = %s, want 500ms", cfg.Room.HeartbeatInterval)
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := New()
	cfg.Server.URL = "ws://localhost:2567"
	cfg.Record.Dir = "recordings"
	path := filepath.Join(dir, FileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Server.URL != cfg.Server.URL || loaded.Record.Dir != "recordings" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Room.InputInterval != cfg.Room.InputInterval {
		t.Errorf("Room.InputInterval = %s, want %s", loaded.Room.InputInterval, cfg.Room.InputInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		code   string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://host" }, "E103"},
		{"no host", func(c *Config) { c.Server.URL = "ws://" }, "E103"},
		{"bad http url", func(c *Config) { c.Server.HTTPURL = "mailto:x" }, "E103"},
		{"negative duration", func(c *Config) { c.Room.JoinTimeout = -time.Second }, "E104"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "E105"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "E106"},
		{"two destinations", func(c *Config) { c.Record.Dir = "d"; c.Record.Bucket = "b" }, "E107"},
		{"prefix without bucket", func(c *Config) { c.Record.Prefix = "p/" }, "E107"},
		{"bad endpoint", func(c *Config) { c.Record.Bucket = "b"; c.Record.Endpoint = "minio" }, "E107"},
		{"negative size", func(c *Config) { c.Transport.MaxMessageSize = -1 }, "E108"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Server.URL = "wss://game.example.test"
			tt.mutate(cfg)
			err := cfg.Validate(true)
			if got := errors.CodeOf(err); got != tt.code {
				t.Fatalf("Validate() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := New()
	cfg.Room.InputInterval = 0
	cfg.Room.MaxPending = 8
	cfg.Transport.InsecureSkipVerify = true

	rc := cfg.RoomOptions()
	if rc.InputInterval != 0 || rc.MaxPendingMessages != 8 || rc.PingType != "ping" {
		t.Errorf("RoomOptions() = %+v", rc)
	}
	tc := cfg.TransportOptions()
	if !tc.InsecureSkipVerify || tc.MaxMessageSize != cfg.Transport.MaxMessageSize || tc.Header == nil {
		t.Errorf("TransportOptions() = %+v", tc)
	}

	if _, ok := cfg.S3Options(); ok {
		t.Error("S3Options() ok without bucket")
	}
	cfg.Record.Bucket = "replays"
	cfg.Record.Region = "eu-west-1"
	s3, ok := cfg.S3Options()
	if !ok || s3.Bucket != "replays" || s3.Region != "eu-west-1" {
		t.Errorf("S3Options() = %+v, %v", s3, ok)
	}
	if !cfg.Recording() {
		t.Error("Recording() = false with bucket set")
	}

	cfg.Log.Level = "warn"
	if cfg.LogLevel().String() != "WARN" {
		t.Errorf("LogLevel() = %s", cfg.LogLevel())
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "log:\n  level: info\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	dir, ok := Find(nested)
	if !ok {
		t.Fatal("Find() did not locate roomsync.yaml")
	}
	want, _ := filepath.Abs(root)
	if dir != want {
		t.Errorf("Find() = %q, want %q", dir, want)
	}
	if !Exists(root) || Exists(nested) {
		t.Error("Exists() mismatch")
	}
}

func TestEnv(t *testing.T) {
	out := Env()
	for _, want := range []string{"ROOMSYNC_SERVER_URL", "ROOMSYNC_TOKENS_REDIS_ADDR", "ROOMSYNC_RECORD_S3_BUCKET"} {
		if !strings.Contains(out, want) {
			t.Errorf("Env() missing %s", want)
		}
	}
}
