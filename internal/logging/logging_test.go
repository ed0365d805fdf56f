package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flea.log")
	logger, closer, err := NewLogger(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info().Str("component", "test").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("log file = %q", data)
	}
}

func TestNewLoggerUnwritableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "flea.log")
	if _, _, err := NewLogger(Config{File: path}); err == nil {
		t.Fatal("unopenable log file should be reported")
	}
}

func TestNewLoggerWithoutFile(t *testing.T) {
	_, closer, err := NewLogger(Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatal(err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("stdout-only closer should be a no-op: %v", err)
	}
}
