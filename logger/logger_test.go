package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		output      string
		shouldError bool
	}{
		{"debug console stderr", "debug", "console", "stderr", false},
		{"info json stdout", "info", "json", "stdout", false},
		{"warn console stderr", "warn", "console", "stderr", false},
		{"warning alias", "warning", "console", "", false},
		{"error json stderr", "ERROR", "json", "stderr", false},
		{"invalid level", "loud", "console", "stderr", true},
		{"unwritable file", "info", "json", filepath.Join(t.TempDir(), "missing", "x.log"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, closeLog, err := New(tt.level, tt.format, tt.output)
			if tt.shouldError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if log == nil {
				t.Fatal("Logger is nil")
			}
			closeLog()
		})
	}
}

func TestNew_JSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	log, closeLog, err := New("info", "json", logFile)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	log.Debug("hidden")
	log.Info("test message")
	_ = log.Sync()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), content)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want test message", entry["msg"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp field")
	}
}

func TestNew_CloseReleasesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "closed.log")

	log, closeLog, err := New("info", "console", logFile)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	log.Info("before close")
	if err := log.Sync(); err != nil {
		t.Fatalf("Sync() before close error = %v", err)
	}

	closeLog()
	if err := log.Sync(); err == nil {
		t.Error("Sync() after close should fail on the closed file")
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "before close") {
		t.Errorf("log file = %q, want the entry written before close", content)
	}
}
