package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"tradesim/internal/config"
)

func TestLoggerLevelAndFields(t *testing.T) {
	var cfg config.Config
	cfg.Logging.Level = "warn"
	cfg.Feed.InstID = "BTC-USDT-SWAP"
	var buf bytes.Buffer
	l := Component(newLogger(cfg, &buf), "simulator")

	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec["component"] != "simulator" || rec["inst"] != "BTC-USDT-SWAP" || rec["message"] != "kept" {
		t.Fatalf("record = %v", rec)
	}
}

func TestLoggerBadLevelFallsBackToInfo(t *testing.T) {
	var cfg config.Config
	cfg.Logging.Level = "loud"
	var buf bytes.Buffer
	l := newLogger(cfg, &buf)
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("output = %s", buf.String())
	}
}
