package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{ServiceName: "stockroom-test", Level: zerolog.DebugLevel, Format: "json", Output: &buf})

	ctx := l.WithRequestID(context.Background(), "req-1")
	ctx = l.WithUserID(ctx, "user-9")
	l.Warn(ctx, "trail append failed", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["service"] != "stockroom-test" {
		t.Fatalf("unexpected service: %v", entry["service"])
	}
	if entry["request_id"] != "req-1" || entry["user_id"] != "user-9" {
		t.Fatalf("context fields missing: %v", entry)
	}
	if entry["level"] != "warn" || entry["error"] != "boom" {
		t.Fatalf("unexpected level/error: %v", entry)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{Level: zerolog.InfoLevel, Format: "json", Output: &buf})
	l.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"DEBUG":    zerolog.DebugLevel,
		" warn ":   zerolog.WarnLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", input, got, want)
		}
	}
}
