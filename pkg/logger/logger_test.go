package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "debug", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWithComponent(t *testing.T) {
	buf := captureDefault(t)
	WithComponent("aggregation-engine").Info("series computed", "total", 5)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["component"] != "aggregation-engine" || rec["msg"] != "series computed" {
		t.Errorf("record = %v", rec)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	buf := captureDefault(t)
	ctx := WithRequestID(context.Background(), "req-1")
	FromContext(ctx).Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["request_id"] != "req-1" {
		t.Errorf("request_id = %v", rec["request_id"])
	}
	if RequestID(context.Background()) != "" {
		t.Error("empty context should carry no request id")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug || ParseLevel("warn") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unexpected level mapping")
	}
}
