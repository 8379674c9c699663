package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONOutputWithContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := WithCallID(WithRequestID(context.Background(), "req-1"), "call-1")
	logger.Info(ctx, "function call received", "function", "customerSearch")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["msg"] != "function call received" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", record["request_id"])
	}
	if record["call_id"] != "call-1" {
		t.Errorf("call_id = %v, want call-1", record["call_id"])
	}
	if record["function"] != "customerSearch" {
		t.Errorf("function = %v", record["function"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Debug(context.Background(), "debug message")
	logger.Info(context.Background(), "info message")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info suppressed at warn level, got %q", buf.String())
	}

	logger.Warn(context.Background(), "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected warn message in output, got %q", buf.String())
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	logger.Info(context.Background(), "auth failed", "detail", "api_key=sk_live_0123456789abcdef0123")
	out := buf.String()
	if strings.Contains(out, "sk_live_0123456789abcdef0123") {
		t.Errorf("secret leaked into log output: %q", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Errorf("expected redaction marker in output: %q", out)
	}
}

func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	m := NewTestMetrics()
	m.WebhookEvents.WithLabelValues("function-call").Inc()
	m.ToolExecutions.WithLabelValues("customerSearch", "success").Inc()
	m.ActiveCallSessions.Set(3)
}
