package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	"reftester/internal/judge/service"
	"reftester/internal/judge/session"
	"reftester/pkg/utils/clock"
)

const (
	stubJudge  model.JudgeID = "stub"
	problemURL               = "https://judge.example/p/1"
)

type fixture struct {
	registry *adapter.Registry
	sessions *session.Manager
	clock    *clock.Manual
	scratch  *service.ScratchDir
}

func newFixture(t *testing.T, a adapter.Adapter) *fixture {
	t.Helper()
	reg := adapter.NewRegistry()
	reg.Register(a, "judge.example")
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr, err := session.NewManager(session.Config{
		Adapters:    reg,
		Credentials: session.StaticCredentials{a.Judge(): {Username: "alice", Password: "pw"}},
		Clock:       clk,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return &fixture{
		registry: reg,
		sessions: mgr,
		clock:    clk,
		scratch:  service.NewScratchDir(filepath.Join(t.TempDir(), "tmp")),
	}
}

func (f *fixture) acquire(t *testing.T, judge model.JudgeID) *session.Session {
	t.Helper()
	sess, err := f.sessions.Acquire(context.Background(), judge)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	return sess
}

func (f *fixture) orchestrator(t *testing.T) *service.Orchestrator {
	t.Helper()
	o, err := service.NewOrchestrator(service.Config{
		Judges:      f.registry,
		Sessions:    f.sessions,
		Poller:      service.NewPoller(f.clock, 2*time.Second, 3),
		Scratch:     f.scratch,
		Clock:       f.clock,
		PollTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return o
}

func (f *fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch.Dir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir not empty: %d files left", len(entries))
	}
}

func newAttempt(judge model.JudgeID, marker model.Marker) model.Attempt {
	return model.NewAttempt(judge, problemURL, "int main() {}\n", marker, 1, "")
}
