package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: sanitizeAttributes}))
}

func TestSanitizeAttributes_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.Info("login", "access_token", "eyJhbGciOi", "jwt_secret", "s3cr3t", "user_id", "u1")

	out := buf.String()
	if strings.Contains(out, "eyJhbGciOi") || strings.Contains(out, "s3cr3t") {
		t.Errorf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, `"access_token":"[REDACTED]"`) {
		t.Errorf("expected redaction marker: %s", out)
	}
	if !strings.Contains(out, `"user_id":"u1"`) {
		t.Errorf("non-sensitive attribute should pass through: %s", out)
	}
}

func TestWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	ctx := SetCorrelationID(context.Background(), "req-123")
	WithCorrelationID(ctx, base).Info("hello")

	if !strings.Contains(buf.String(), `"correlation_id":"req-123"`) {
		t.Errorf("expected correlation id in %s", buf.String())
	}

	if WithCorrelationID(context.Background(), base) != base {
		t.Error("logger without correlation id should be returned unchanged")
	}
}

func TestGetCorrelationID_FallsBackToRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "chi-req")
	if got := GetCorrelationID(ctx); got != "chi-req" {
		t.Errorf("expected chi-req, got %q", got)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	WithComponent(newBufferLogger(&buf), "presence").Info("ready")

	if !strings.Contains(buf.String(), `"component":"presence"`) {
		t.Errorf("expected component attribute in %s", buf.String())
	}
}

func TestNew_TextFormatAndLevel(t *testing.T) {
	log := New(Config{Level: "warn", Format: "text", Output: "stderr"})
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !log.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled")
	}
	if _, ok := log.Handler().(*slog.TextHandler); !ok {
		t.Errorf("expected text handler, got %T", log.Handler())
	}
}
