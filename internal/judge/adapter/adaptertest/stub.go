// Package adaptertest provides judge adapter doubles for tests.
package adaptertest

import (
	"context"
	"net/http"
	"sync"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
)

const (
	OpAuthenticate = "authenticate"
	OpSubmit       = "submit"
	OpList         = "list"
	OpFetchMarker  = "fetch_marker"
	OpPollVerdict  = "poll_verdict"
	OpRestore      = "restore"
)

// Stub is an adapter whose behaviour is set per operation. Unset operations succeed
// with empty results and PollVerdict reports Accepted.
type Stub struct {
	ID             model.JudgeID
	AuthenticateFn func(ctx context.Context, creds adapter.Credentials) error
	SubmitFn       func(ctx context.Context, problemURL string, src adapter.Source) error
	ListFn         func(ctx context.Context) ([]model.SubmissionID, error)
	FetchMarkerFn  func(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error)
	PollVerdictFn  func(ctx context.Context, id model.SubmissionID) (model.Verdict, error)

	mu    sync.Mutex
	calls map[string]int
}

func (s *Stub) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
}

// Calls returns how often op was invoked.
func (s *Stub) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of invocations over all operations.
func (s *Stub) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *Stub) Judge() model.JudgeID {
	if s.ID == "" {
		return "stub"
	}
	return s.ID
}

func (s *Stub) Authenticate(ctx context.Context, creds adapter.Credentials) error {
	s.record(OpAuthenticate)
	if s.AuthenticateFn != nil {
		return s.AuthenticateFn(ctx, creds)
	}
	return nil
}

func (s *Stub) Submit(ctx context.Context, problemURL string, src adapter.Source) error {
	s.record(OpSubmit)
	if s.SubmitFn != nil {
		return s.SubmitFn(ctx, problemURL, src)
	}
	return nil
}

func (s *Stub) ListRecentSubmissionIDs(ctx context.Context) ([]model.SubmissionID, error) {
	s.record(OpList)
	if s.ListFn != nil {
		return s.ListFn(ctx)
	}
	return nil, nil
}

func (s *Stub) FetchSubmissionMarker(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error) {
	s.record(OpFetchMarker)
	if s.FetchMarkerFn != nil {
		return s.FetchMarkerFn(ctx, id)
	}
	return "", false, nil
}

func (s *Stub) PollVerdict(ctx context.Context, id model.SubmissionID) (model.Verdict, error) {
	s.record(OpPollVerdict)
	if s.PollVerdictFn != nil {
		return s.PollVerdictFn(ctx, id)
	}
	return model.VerdictAccepted, nil
}

// ResumableStub is a Stub that also persists its login in cookies.
type ResumableStub struct {
	Stub
	CookiesFn func() []*http.Cookie
	RestoreFn func(ctx context.Context, creds adapter.Credentials, cookies []*http.Cookie) (bool, error)
}

func (s *ResumableStub) Cookies() []*http.Cookie {
	if s.CookiesFn != nil {
		return s.CookiesFn()
	}
	return nil
}

func (s *ResumableStub) Restore(ctx context.Context, creds adapter.Credentials, cookies []*http.Cookie) (bool, error) {
	s.record(OpRestore)
	if s.RestoreFn != nil {
		return s.RestoreFn(ctx, creds, cookies)
	}
	return false, nil
}

// Source maps judges to adapters for a session manager.
type Source map[model.JudgeID]adapter.Adapter

func (s Source) Adapter(id model.JudgeID) (adapter.Adapter, error) {
	a, ok := s[id]
	if !ok {
		return nil, errNotSupported(id)
	}
	return a, nil
}
