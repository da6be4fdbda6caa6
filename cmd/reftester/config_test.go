package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reftester/internal/judge/model"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("loadAppConfig() error = %v", err)
	}
	if cfg.ScratchDir != "tmp" || cfg.Concurrency != 0 {
		t.Fatalf("scratch/concurrency = %q/%d", cfg.ScratchDir, cfg.Concurrency)
	}
	if cfg.Session.LoginInitial != 2*time.Second || cfg.Session.LoginMaxElapsed != 65*time.Second {
		t.Fatalf("login schedule = %+v", cfg.Session)
	}
	if cfg.Submission.RetryInitial != 3*time.Second || cfg.Submission.RetryMultiplier != 10 || cfg.Submission.RetryMaxElapsed != 1000*time.Second {
		t.Fatalf("retry schedule = %+v", cfg.Submission)
	}
	if cfg.Submission.PollInterval != 2*time.Second || cfg.Submission.PollMaxTransient != 3 {
		t.Fatalf("poll settings = %+v", cfg.Submission)
	}
	if cfg.Session.Store.Kind != storeNone || cfg.Logger.OutputPath != "stderr" {
		t.Fatalf("store/logger = %q/%q", cfg.Session.Store.Kind, cfg.Logger.OutputPath)
	}
	vars := cfg.envVars()
	if vars[model.JudgeCodeforces].User != "CF_USER" || vars[model.JudgeSpoj].Password != "SPOJ_PASSWORD" {
		t.Fatalf("env vars = %+v", vars)
	}
}

func TestLoadAppConfigRequiredMissing(t *testing.T) {
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"), true); err == nil {
		t.Fatal("expected error for a missing explicit config")
	}
}

func TestLoadAppConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reftester.yaml")
	data := `
concurrency: 4
testFiles:
  extensions: [".test.cpp"]
  includeRoots: ["lib"]
session:
  store:
    kind: redis
    redis:
      addr: 127.0.0.1:6379
submission:
  retryInitial: 1s
  pollTimeout: 90s
transport:
  rps: 0.5
judges:
  codeforces:
    userEnv: CF_LOGIN
    baseURL: https://mirror.codeforces.example
    hosts: [mirror.codeforces.example]
    options:
      language: "73"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadAppConfig(path, true)
	if err != nil {
		t.Fatalf("loadAppConfig() error = %v", err)
	}
	if cfg.Concurrency != 4 || cfg.TestFiles.Extensions[0] != ".test.cpp" || cfg.TestFiles.IgnorePrefix != "_" {
		t.Fatalf("test files = %+v", cfg.TestFiles)
	}
	if cfg.Session.Store.Redis.PoolSize == 0 || cfg.Session.Store.TTL != 24*time.Hour {
		t.Fatalf("redis store defaults not applied: %+v", cfg.Session.Store)
	}
	if cfg.Submission.RetryInitial != time.Second || cfg.Submission.PollTimeout != 90*time.Second {
		t.Fatalf("submission = %+v", cfg.Submission)
	}
	if cfg.Transport.RPS != 0.5 || cfg.Transport.Burst != 2 {
		t.Fatalf("transport = %+v", cfg.Transport)
	}
	vars := cfg.envVars()
	if vars[model.JudgeCodeforces].User != "CF_LOGIN" || vars[model.JudgeCodeforces].Password != "CF_PASSWORD" {
		t.Fatalf("codeforces env = %+v", vars[model.JudgeCodeforces])
	}
	ac := cfg.adapterConfigs()[model.JudgeCodeforces]
	if ac.BaseURL != "https://mirror.codeforces.example" || ac.Options["language"] != "73" {
		t.Fatalf("adapter config = %+v", ac)
	}
}

func TestApplyDefaultsRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{name: "negative concurrency", cfg: AppConfig{Concurrency: -1}},
		{name: "unknown store", cfg: AppConfig{Session: SessionConfig{Store: StoreConfig{Kind: "etcd"}}}},
		{name: "redis without addr", cfg: AppConfig{Session: SessionConfig{Store: StoreConfig{Kind: storeRedis}}}},
		{name: "jitter out of range", cfg: AppConfig{Submission: SubmissionConfig{Jitter: 1.5}}},
		{name: "unknown judge", cfg: AppConfig{Judges: map[string]JudgeConfig{"atcoder": {}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := applyDefaults(&tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
