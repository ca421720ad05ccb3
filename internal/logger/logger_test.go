package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsContent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("brake check",
		"user_id", "alice",
		"event_title", "Board Meeting",
		"current_hrv", 35.0,
		"jwt_secret", "s3cr3t",
		"day", 3,
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_title"] != "[REDACTED]" {
		t.Fatalf("event title leaked: %v", fields["event_title"])
	}
	if fields["current_hrv"] != "[REDACTED]" {
		t.Fatalf("hrv value leaked: %v", fields["current_hrv"])
	}
	if fields["jwt_secret"] != "[REDACTED]" {
		t.Fatalf("secret leaked")
	}
	uid, _ := fields["user_id"].(string)
	if !strings.HasPrefix(uid, "hash:") || strings.Contains(uid, "alice") {
		t.Fatalf("user id not hashed: %v", fields["user_id"])
	}
	if fields["day"] != int64(3) {
		t.Fatalf("expected day passthrough, got %#v", fields["day"])
	}
}

func TestWithSanitizes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("user_id", "bob")
	l.Debug("hello")
	fields := logs.All()[0].ContextMap()
	if fields["user_id"] == "bob" {
		t.Fatalf("user id not hashed in With")
	}
}

func TestOddKeyValues(t *testing.T) {
	out := sanitizeKVs([]interface{}{"day", 2, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected %v", out)
	}
}
