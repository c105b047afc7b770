package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info", "json")
	defer Setup(&bytes.Buffer{}, "info", "json")

	ctx := WithRequestID(context.Background(), "req-42")
	LoggerFromContext(ctx).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["request_id"] != "req-42" {
		t.Fatalf("expected request_id req-42, got %v", line["request_id"])
	}
}

func TestSetupLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "warn", "text")
	defer Setup(&bytes.Buffer{}, "info", "json")

	Logger().Info("dropped")
	Logger().Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithFieldsAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info", "json")
	defer Setup(&bytes.Buffer{}, "info", "json")

	WithFields("user_id", "u7").Info("scoped")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["user_id"] != "u7" || line["msg"] != "scoped" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
