package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config", "E102", "Missing server URL", CategoryConfig},
		{"cli", "E120", "Missing room type", CategoryCLI},
		{"connection", "E152", "Join timed out", CategoryConnection},
		{"decode", "E161", "State capture needs a schema", CategoryDecode},
		{"unknown", "E999", "Unknown error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	err := New("E103").WithDetail(`"ftp://x" is not a websocket URL`)
	if got := err.Error(); got != `E103: Invalid server URL: "ftp://x" is not a websocket URL` {
		t.Fatalf("Error() = %q", got)
	}

	cause := io.ErrUnexpectedEOF
	wrapped := New("E162").Wrap(cause)
	if !stderrors.Is(wrapped, cause) {
		t.Fatal("errors.Is lost the wrapped cause")
	}
	if !strings.HasSuffix(wrapped.Error(), cause.Error()) {
		t.Fatalf("Error() = %q, want cause suffix", wrapped.Error())
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E150") != nil {
		t.Fatal("FromError(nil) != nil")
	}

	coded := New("E151")
	if got := FromError(fmt.Errorf("join: %w", coded), "E150"); got != coded {
		t.Fatalf("FromError() = %v, want the existing coded error", got)
	}

	plain := stderrors.New("dial refused")
	got := FromError(plain, "E150")
	if got.Code != "E150" || !stderrors.Is(got, plain) {
		t.Fatalf("FromError() = %+v", got)
	}
	if CodeOf(fmt.Errorf("outer: %w", got)) != "E150" {
		t.Fatal("CodeOf did not find the wrapped code")
	}
	if CodeOf(plain) != "" {
		t.Fatal("CodeOf(plain) != \"\"")
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E103").
		WithSource("roomsync.yaml").
		WithDetail(`server.url "ftp://host" must use ws, wss, http or https`).
		WithSuggestion("Set server.url to the game server").
		WithExample("server:\n  url: wss://game.example.com")

	out := err.Format()
	for _, want := range []string{
		"ERROR E103: Invalid server URL",
		"  roomsync.yaml",
		`server.url "ftp://host"`,
		"Hint: Set server.url to the game server",
		"    server:",
		"      url: wss://game.example.com",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() emitted ANSI escapes with colors disabled")
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E100").WithSource("missing.yaml")
	if got := err.FormatCompact(); got != "missing.yaml: E100: Config file not found" {
		t.Fatalf("FormatCompact() = %q", got)
	}
	if got := Newf(CategoryCLI, "bad %s", "flag").FormatCompact(); got != "bad flag" {
		t.Fatalf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E150").WithSource("wss://game/p/r").Wrap(stderrors.New("refused"))
	var got map[string]string
	if e := json.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("FormatJSON() not JSON: %v", e)
	}
	want := map[string]string{
		"code":     "E150",
		"category": "connection",
		"message":  "Room connection failed",
		"source":   "wss://game/p/r",
		"cause":    "refused",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	PrintError(&buf, fmt.Errorf("run: %w", New("E120")))
	if !strings.Contains(buf.String(), "ERROR E120: Missing room type") {
		t.Fatalf("PrintError() = %q", buf.String())
	}

	buf.Reset()
	PrintError(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Fatalf("PrintError() = %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q longer than 10", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six" {
		t.Fatalf("wrapText() = %v", lines)
	}
	if wrapText("", 10) != nil {
		t.Fatal("wrapText(\"\") != nil")
	}
}

func TestRegistry(t *testing.T) {
	codes := Codes()
	if len(codes) == 0 {
		t.Fatal("empty registry")
	}
	for i, code := range codes {
		if i > 0 && codes[i-1] >= code {
			t.Fatalf("Codes() not sorted at %d", i)
		}
		tmpl, ok := Lookup(code)
		if !ok || tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("code %s has incomplete template %+v", code, tmpl)
		}
	}

	Register("E900", Template{Category: CategoryCLI, Message: "custom"})
	defer delete(registry, "E900")
	if New("E900").Message != "custom" {
		t.Fatal("Register() not visible to New()")
	}
}
