package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"  INFO ", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in); got != c.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_CALLER", "")

	opt := FromEnv()
	if opt.Level != "info" {
		t.Fatalf("level = %q, want info", opt.Level)
	}
	if opt.Format != "console" {
		t.Fatalf("format = %q, want console", opt.Format)
	}
	if opt.WithCaller {
		t.Fatalf("caller should default off")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_CALLER", "true")
	t.Setenv("LOG_SERVICE", "reconfilter")

	opt := FromEnv()
	if opt.Level != "debug" || opt.Format != "json" || !opt.WithCaller || opt.Service != "reconfilter" {
		t.Fatalf("opts = %+v", opt)
	}
}

func TestInitOnce(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Writer: &buf})

	first := Get()
	// later Init calls are no-ops; the root logger pointer is stable
	Init(Options{Level: "error", Format: "json"})
	if Get() != first {
		t.Fatalf("Init must be idempotent")
	}
}

func TestWithComponentField(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Writer: &buf})

	l := With("engine").Output(&buf)
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "engine" {
		t.Fatalf("component field missing: %v", entry)
	}
	if entry["message"] != "hello" {
		t.Fatalf("message missing: %v", entry)
	}
}
