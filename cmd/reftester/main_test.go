package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reftester/internal/common/mq"
	"reftester/pkg/utils/logger"
)

func TestBuildReportSinksKafka(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := logger.Init(logger.Config{Level: "warn", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("logger.Init() error = %v", err)
	}
	t.Cleanup(func() { _ = logger.Init(logger.Config{Level: "error"}) })
	ctx := context.Background()

	sinks, closeAll := buildReportSinks(ctx, ReportConfig{}, "run-1")
	closeAll()
	if len(sinks) != 0 {
		t.Fatalf("unconfigured report sinks = %d, want 0", len(sinks))
	}

	kafkaCfg := mq.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}
	sinks, closeAll = buildReportSinks(ctx, ReportConfig{Kafka: kafkaCfg}, "run-1")
	closeAll()
	if len(sinks) != 1 {
		t.Fatalf("kafka report sinks = %d, want 1", len(sinks))
	}

	kafkaCfg.Compression = "brotli"
	sinks, closeAll = buildReportSinks(ctx, ReportConfig{Kafka: kafkaCfg}, "run-1")
	closeAll()
	if len(sinks) != 0 {
		t.Fatalf("broken kafka config produced %d sinks", len(sinks))
	}
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "outcome events disabled") {
		t.Fatalf("skipped backend was not logged:\n%s", data)
	}
}
