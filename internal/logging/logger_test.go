package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"prcast/internal/services"
)

func TestConsoleHandlerFormatsHeaderFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("stage completed",
		String(FieldComponent, "workflow"),
		String(FieldJobID, "abcdef0123456789"),
		String(FieldStage, "scripting"),
		Int("attempt", 2),
	)

	line := buf.String()
	if !strings.Contains(line, "[workflow job=abcdef012345 stage=scripting]") {
		t.Fatalf("unexpected header: %q", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Fatalf("expected attrs in output: %q", line)
	}
}

func TestJSONHandlerLowercasesLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl))

	logger.Warn("lease expired", String("job_id", "x"))

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if decoded["level"] != "warn" {
		t.Fatalf("unexpected level: %v", decoded["level"])
	}
	if decoded["msg"] != "lease expired" {
		t.Fatalf("unexpected msg: %v", decoded["msg"])
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl))

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithStage(ctx, "rendering")
	ctx = services.WithWorker(ctx, "worker-2")

	WithContext(ctx, logger).Info("claimed")

	out := buf.String()
	for _, want := range []string{`"job_id":"job-1"`, `"stage":"rendering"`, `"worker":"worker-2"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
