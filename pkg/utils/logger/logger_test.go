package logger_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reftester/pkg/utils/contextkey"
	"reftester/pkg/utils/logger"
)

func TestContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := logger.Init(logger.Config{Level: "debug", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Init(logger.Config{Level: "error"}) })

	ctx := logger.With(context.Background(), contextkey.File, "a.cpp")
	ctx = logger.With(ctx, contextkey.Attempt, 2)
	logger.Info(ctx, "attempt started")
	logger.Debug(context.Background(), "plain")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry["msg"] != "attempt started" || entry["file"] != "a.cpp" || entry["attempt"] != float64(2) {
		t.Fatalf("entry = %v", entry)
	}
	if strings.Contains(lines[1], `"file"`) {
		t.Fatalf("plain entry carries context fields: %s", lines[1])
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := logger.NewLogger(logger.Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
