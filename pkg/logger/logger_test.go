package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitUnknownLevelFallsBack(t *testing.T) {
	if err := Init("chatty", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Log == nil {
		t.Fatal("global logger not set")
	}
	if !Log.Core().Enabled(zap.InfoLevel) {
		t.Error("fallback level must enable info")
	}
	if Log.Core().Enabled(zap.DebugLevel) {
		t.Error("fallback level must not enable debug")
	}
}

func TestInitFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	if err := Init("info", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Info("file sink check", zap.String("component", "logger_test"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "file sink check") {
		t.Errorf("log file missing entry, got %q", string(data))
	}
	if !strings.Contains(string(data), `"component":"logger_test"`) {
		t.Errorf("file sink must be JSON-encoded, got %q", string(data))
	}
}

func TestUsableBeforeInit(t *testing.T) {
	Log = zap.NewNop()
	// Must not panic
	Info("pre-init message")
	Sync()
}
