package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"delegate/internal/logging"
	"delegate/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerRendersAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("turn started", logging.String(logging.FieldSessionID, "review"), logging.Int("attempt", 1))

	out := buf.String()
	if !strings.Contains(out, "INF turn started") {
		t.Fatalf("missing level/message in output: %q", out)
	}
	if !strings.Contains(out, "session_id=review") || !strings.Contains(out, "attempt=1") {
		t.Fatalf("missing attrs in output: %q", out)
	}
}

func TestJSONHandlerEmitsStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("slow turn", logging.String("model", "a:b"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "slow turn" {
		t.Fatalf("unexpected msg field: %v", record["msg"])
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level field: %v", record["level"])
	}
	if record["model"] != "a:b" {
		t.Fatalf("unexpected model field: %v", record["model"])
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be suppressed, got %q", buf.String())
	}
}

func TestWithContextAddsSessionFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSessionID(context.Background(), "abc")
	ctx = services.WithTurnState(ctx, "streaming")
	logging.WithContext(ctx, logger).Debug("tick")

	out := buf.String()
	if !strings.Contains(out, "session_id=abc") || !strings.Contains(out, "turn_state=streaming") {
		t.Fatalf("expected context fields in output: %q", out)
	}
}
