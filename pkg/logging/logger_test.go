package logging

import (
	"os"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the global log directory at a temp dir and resets
// run-scoped state, restoring everything on cleanup.
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origRunID := runID

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	initOnce.Do(func() {}) // mark initialized so NewLogger uses tempDir
	runID = ""
	runIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		runID = origRunID
		runIDOnce = sync.Once{}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("store")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "store" {
		t.Errorf("Expected component 'store', got %q", logger.component)
	}
	if logger.RunID() == "" {
		t.Error("Expected non-empty run ID")
	}
	if logger.LogPath() == "" {
		t.Error("Expected non-empty log path")
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerLevels(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("auth")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debugf("debug %d", 1)
	logger.Infof("info %s", "message")
	logger.Warnf("warn")
	logger.Errorf("error")
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	for _, want := range []string{"[DEBUG] debug 1", "[INFO] info message", "[WARN] warn", "[ERROR] error", "[auth]"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("Log file missing %q:\n%s", want, content)
		}
	}
}

func TestLoggersShareRunFile(t *testing.T) {
	setupTestDir(t)

	a, err := NewLogger("server")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer a.Close()

	b, err := NewLogger("coordinator")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer b.Close()

	if a.LogPath() != b.LogPath() {
		t.Errorf("Expected shared log file, got %q and %q", a.LogPath(), b.LogPath())
	}
	if a.RunID() != b.RunID() {
		t.Errorf("Expected shared run ID, got %q and %q", a.RunID(), b.RunID())
	}
}

func TestLoggerCloseIdempotent(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}
