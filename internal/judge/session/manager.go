package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the authentication state of a judge session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
	// StateFailed is terminal: the login budget ran out or credentials are missing.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AdapterSource resolves the adapter of a judge.
type AdapterSource interface {
	Adapter(id model.JudgeID) (adapter.Adapter, error)
}

// Config holds manager dependencies and settings.
type Config struct {
	Adapters    AdapterSource
	Credentials CredentialsProvider
	// Store is optional; without it every run logs in afresh.
	Store Store
	Clock clock.Clock

	LoginInitial    time.Duration
	LoginMultiplier float64
	LoginMaxElapsed time.Duration
}

const (
	defaultLoginInitial    = 2 * time.Second
	defaultLoginMultiplier = 2
	defaultLoginMaxElapsed = 65 * time.Second
	storeTimeout           = 5 * time.Second
)

// Manager owns one authenticated session per judge.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	entries cmap.ConcurrentMap[string, *entry]
	logins  singleflight.Group
}

// entry is the long-lived per-judge state behind every Session handle.
type entry struct {
	judge   model.JudgeID
	adapter adapter.Adapter

	// op is read-held by adapter calls and write-held by login.
	op sync.RWMutex

	mu              sync.Mutex
	state           State
	generation      uint64
	authenticatedAt time.Time
	failure         error
	restoreTried    bool

	lastUsed atomic.Int64
}

// Session is a handle on an authenticated judge session of one generation.
type Session struct {
	entry           *entry
	clock           clock.Clock
	generation      uint64
	authenticatedAt time.Time
}

func (s *Session) Judge() model.JudgeID {
	return s.entry.judge
}

// Generation increases with every successful login of the judge.
func (s *Session) Generation() uint64 {
	return s.generation
}

func (s *Session) AuthenticatedAt() time.Time {
	return s.authenticatedAt
}

// Use runs one adapter operation. A re-login never overlaps a running operation.
func (s *Session) Use(ctx context.Context, fn func(a adapter.Adapter) error) error {
	if err := ctx.Err(); err != nil {
		return appErr.Wrap(err, appErr.Canceled)
	}
	s.entry.op.RLock()
	defer s.entry.op.RUnlock()
	s.entry.lastUsed.Store(s.clock.Now().UnixNano())
	return fn(s.entry.adapter)
}

// NewManager creates a session manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("adapter source is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.LoginInitial <= 0 {
		cfg.LoginInitial = defaultLoginInitial
	}
	if cfg.LoginMultiplier <= 1 {
		cfg.LoginMultiplier = defaultLoginMultiplier
	}
	if cfg.LoginMaxElapsed <= 0 {
		cfg.LoginMaxElapsed = defaultLoginMaxElapsed
	}
	return &Manager{
		cfg:     cfg,
		clock:   cfg.Clock,
		entries: cmap.New[*entry](),
	}, nil
}

// Acquire returns an authenticated session, logging in first when needed.
// Concurrent callers share one in-flight login.
func (m *Manager) Acquire(ctx context.Context, judge model.JudgeID) (*Session, error) {
	e, err := m.entry(judge)
	if err != nil {
		return nil, err
	}
	for {
		if sess, done, err := m.ready(e); done {
			return sess, err
		}
		ch := m.logins.DoChan(string(judge), func() (any, error) {
			return nil, m.login(ctx, e)
		})
		select {
		case <-ctx.Done():
			return nil, appErr.Wrap(ctx.Err(), appErr.Canceled)
		case res := <-ch:
			if res.Err == nil {
				continue
			}
			// The login was led by a caller whose context ended; lead a new one.
			if appErr.IsContext(res.Err) && ctx.Err() == nil {
				continue
			}
			return nil, res.Err
		}
	}
}

// Invalidate marks the session expired after an attempt saw the judge drop the login.
// It reports false for a stale handle, whose generation was already replaced.
func (m *Manager) Invalidate(ctx context.Context, sess *Session) bool {
	e := sess.entry
	e.mu.Lock()
	if e.state != StateAuthenticated || e.generation != sess.generation {
		e.mu.Unlock()
		return false
	}
	e.state = StateExpired
	e.mu.Unlock()

	fields := []zap.Field{
		zap.String("judge", string(e.judge)),
		zap.Uint64("generation", sess.generation),
	}
	if last := m.LastUsed(e.judge); !last.IsZero() {
		fields = append(fields, zap.Duration("idle", m.clock.Now().Sub(last)))
	}
	logger.Info(ctx, "judge session expired", fields...)

	if m.cfg.Store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		if err := m.cfg.Store.Delete(storeCtx, e.judge); err != nil {
			logger.Warn(ctx, "delete session snapshot failed", zap.String("judge", string(e.judge)), zap.Error(err))
		}
	}
	return true
}

// State returns the current state of a judge session.
func (m *Manager) State(judge model.JudgeID) State {
	e, ok := m.entries.Get(string(judge))
	if !ok {
		return StateUnauthenticated
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastUsed returns when an adapter operation last ran on the judge session.
func (m *Manager) LastUsed(judge model.JudgeID) time.Time {
	e, ok := m.entries.Get(string(judge))
	if !ok {
		return time.Time{}
	}
	ns := e.lastUsed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *Manager) entry(judge model.JudgeID) (*entry, error) {
	if e, ok := m.entries.Get(string(judge)); ok {
		return e, nil
	}
	a, err := m.cfg.Adapters.Adapter(judge)
	if err != nil {
		return nil, err
	}
	fresh := &entry{judge: judge, adapter: a}
	return m.entries.Upsert(string(judge), fresh, func(exist bool, inMap, newValue *entry) *entry {
		if exist {
			return inMap
		}
		return newValue
	}), nil
}

func (m *Manager) ready(e *entry) (*Session, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateAuthenticated:
		return &Session{entry: e, clock: m.clock, generation: e.generation, authenticatedAt: e.authenticatedAt}, true, nil
	case StateFailed:
		return nil, true, e.failure
	}
	return nil, false, nil
}

func (m *Manager) login(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.state == StateAuthenticated || e.state == StateFailed {
		e.mu.Unlock()
		return nil
	}
	prev := e.state
	e.state = StateAuthenticating
	tryRestore := m.cfg.Store != nil && !e.restoreTried
	e.restoreTried = true
	e.mu.Unlock()

	creds, err := m.cfg.Credentials.Credentials(e.judge)
	if err != nil {
		m.fail(ctx, e, err)
		return err
	}
	if tryRestore && m.restore(ctx, e, creds) {
		return nil
	}

	b := m.loginBackOff()
	for attempt := 1; ; attempt++ {
		e.op.Lock()
		err := e.adapter.Authenticate(ctx, creds)
		e.op.Unlock()
		if err == nil {
			m.authenticated(ctx, e, creds, attempt)
			return nil
		}
		if ctx.Err() != nil || appErr.IsContext(err) {
			m.setState(e, prev)
			return canceled(ctx, err)
		}
		if appErr.IsFatal(err) {
			m.fail(ctx, e, err)
			return err
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			budgetErr := appErr.Wrapf(err, appErr.AuthBudgetExceeded, "could not log into %s after %d attempts", e.judge, attempt)
			m.fail(ctx, e, budgetErr)
			return budgetErr
		}
		logger.Warn(ctx, "judge login failed, retrying",
			zap.String("judge", string(e.judge)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := m.clock.Sleep(ctx, wait); err != nil {
			m.setState(e, prev)
			return canceled(ctx, err)
		}
	}
}

func (m *Manager) loginBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.LoginInitial
	b.Multiplier = m.cfg.LoginMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = m.cfg.LoginMaxElapsed
	b.MaxElapsedTime = m.cfg.LoginMaxElapsed
	b.Clock = m.clock
	b.Reset()
	return b
}

func (m *Manager) restore(ctx context.Context, e *entry, creds adapter.Credentials) bool {
	r, ok := e.adapter.(adapter.Resumable)
	if !ok {
		return false
	}
	snap, found, err := m.cfg.Store.Load(ctx, e.judge)
	if err != nil {
		logger.Warn(ctx, "load session snapshot failed", zap.String("judge", string(e.judge)), zap.Error(err))
		return false
	}
	if !found || snap.Username != creds.Username {
		return false
	}

	e.op.Lock()
	valid, err := r.Restore(ctx, creds, snap.HTTPCookies())
	e.op.Unlock()
	if err != nil || !valid {
		logger.Info(ctx, "stored judge session rejected", zap.String("judge", string(e.judge)), zap.Error(err))
		return false
	}

	now := m.clock.Now()
	e.mu.Lock()
	e.generation++
	e.state = StateAuthenticated
	e.authenticatedAt = now
	e.mu.Unlock()
	logger.Info(ctx, "judge session restored", zap.String("judge", string(e.judge)), zap.Time("savedAt", snap.SavedAt))
	return true
}

func (m *Manager) authenticated(ctx context.Context, e *entry, creds adapter.Credentials, attempts int) {
	now := m.clock.Now()
	e.mu.Lock()
	e.generation++
	e.state = StateAuthenticated
	e.authenticatedAt = now
	e.failure = nil
	gen := e.generation
	e.mu.Unlock()

	logger.Info(ctx, "judge session authenticated",
		zap.String("judge", string(e.judge)),
		zap.Uint64("generation", gen),
		zap.Int("attempts", attempts))

	if m.cfg.Store == nil {
		return
	}
	r, ok := e.adapter.(adapter.Resumable)
	if !ok {
		return
	}
	e.op.RLock()
	cookies := r.Cookies()
	e.op.RUnlock()
	snap := Snapshot{Judge: e.judge, Username: creds.Username, Cookies: snapshotCookies(cookies), SavedAt: now}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := m.cfg.Store.Save(storeCtx, snap); err != nil {
		logger.Warn(ctx, "save session snapshot failed", zap.String("judge", string(e.judge)), zap.Error(err))
	}
}

func (m *Manager) fail(ctx context.Context, e *entry, err error) {
	e.mu.Lock()
	e.state = StateFailed
	e.failure = err
	e.mu.Unlock()
	logger.Error(ctx, "judge session unavailable", zap.String("judge", string(e.judge)), zap.Error(err))
}

func (m *Manager) setState(e *entry, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func canceled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return appErr.Wrap(ctxErr, appErr.Canceled)
	}
	if appErr.GetCode(err) == appErr.Canceled {
		return err
	}
	return appErr.Wrap(err, appErr.Canceled)
}
