package zaplog

import (
	"context"
	"testing"

	"github.com/goliatone/go-login/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevelsAndArgs(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(observed))

	logger.Trace("trace line")
	logger.Info("login started", "slot", 1, "system", "EAS")
	logger.Warn("login failed", "error", "bad password")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected trace to map to debug, got %s", entries[0].Level)
	}
	info := entries[1]
	if info.Message != "login started" || info.ContextMap()["slot"] != int64(1) || info.ContextMap()["system"] != "EAS" {
		t.Fatalf("unexpected info entry %#v", info)
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entries[2].Level)
	}
}

func TestLoggerWithFields(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	var logger core.Logger = New(zap.New(observed))

	fields, ok := logger.(core.FieldsLogger)
	if !ok {
		t.Fatalf("expected fields logger")
	}
	child := fields.WithFields(map[string]any{"attempt_id": "a-1", "slot": 2})
	child.WithContext(context.Background()).Info("phase advanced")

	entries := logs.FilterMessage("phase advanced").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["attempt_id"] != "a-1" || ctx["slot"] != int64(2) {
		t.Fatalf("expected fields on child logger, got %#v", ctx)
	}
}

func TestProviderNamesLoggers(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	provider := NewProvider(zap.New(observed))

	provider.GetLogger("login").Info("hello")
	entries := logs.All()
	if len(entries) != 1 || entries[0].LoggerName != "login" {
		t.Fatalf("expected named logger entry, got %#v", entries)
	}
}

func TestNilBaseIsNop(t *testing.T) {
	New(nil).Info("dropped")
	NewProvider(nil).GetLogger("login").Error("dropped")
}
