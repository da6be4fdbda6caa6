package service

import (
	"context"
	"fmt"
	"time"

	"reftester/internal/judge/model"
	"reftester/internal/judge/session"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/contextkey"
	"reftester/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultRetryInitial    = 3 * time.Second
	defaultRetryMultiplier = 10
	defaultRetryMaxElapsed = 1000 * time.Second
	defaultPollTimeout     = 5 * time.Minute
)

// Identifier resolves the judge serving a problem url.
type Identifier interface {
	Identify(problemURL string) (model.JudgeID, error)
}

// Sessions hands out authenticated judge sessions.
type Sessions interface {
	Acquire(ctx context.Context, judge model.JudgeID) (*session.Session, error)
	Invalidate(ctx context.Context, sess *session.Session) bool
}

// Config holds orchestrator dependencies and settings.
type Config struct {
	Judges     Identifier
	Sessions   Sessions
	Correlator *Correlator
	Poller     *Poller
	Scratch    *ScratchDir
	Clock      clock.Clock

	RetryInitial    time.Duration
	RetryMultiplier float64
	RetryMaxElapsed time.Duration
	// Jitter is the backoff randomization factor, 0 keeps the schedule exact.
	Jitter      float64
	PollTimeout time.Duration
}

// Orchestrator drives one test file from submission to final verdict.
type Orchestrator struct {
	cfg        Config
	judges     Identifier
	sessions   Sessions
	correlator *Correlator
	poller     *Poller
	scratch    *ScratchDir
	clock      clock.Clock
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Judges == nil {
		return nil, fmt.Errorf("judge identifier is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Correlator == nil {
		cfg.Correlator = NewCorrelator()
	}
	if cfg.Poller == nil {
		cfg.Poller = NewPoller(cfg.Clock, 0, 0)
	}
	if cfg.Scratch == nil {
		cfg.Scratch = NewScratchDir("")
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	if cfg.RetryMultiplier <= 1 {
		cfg.RetryMultiplier = defaultRetryMultiplier
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = defaultRetryMaxElapsed
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Orchestrator{
		cfg:        cfg,
		judges:     cfg.Judges,
		sessions:   cfg.Sessions,
		correlator: cfg.Correlator,
		poller:     cfg.Poller,
		scratch:    cfg.Scratch,
		clock:      cfg.Clock,
	}, nil
}

// Run submits content for the problem until the judge gives a final verdict.
// Transient failures retry the whole attempt with a fresh marker; running out of
// retry budget yields SubmissionTimeout. Fatal errors return at once.
func (o *Orchestrator) Run(ctx context.Context, problemURL, content string) (model.Verdict, error) {
	judge, err := o.judges.Identify(problemURL)
	if err != nil {
		return model.VerdictPending, err
	}
	ctx = logger.With(ctx, contextkey.Judge, string(judge))
	if err := o.scratch.Ensure(); err != nil {
		return model.VerdictPending, err
	}

	b := o.retryBackOff()
	for attempt := 1; ; attempt++ {
		verdict, err := o.attempt(ctx, judge, problemURL, content, attempt)
		if err == nil {
			return verdict, nil
		}
		if ctx.Err() != nil || appErr.IsContext(err) {
			return model.VerdictPending, canceled(ctx, err)
		}
		if appErr.IsFatal(err) {
			logger.Error(ctx, "submission failed", zap.Int("attempt", attempt), zap.Error(err))
			return model.VerdictPending, err
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return model.VerdictPending, appErr.Wrapf(err, appErr.SubmissionTimeout,
				"submission timeout after %d attempts", attempt)
		}
		logger.Warn(ctx, "submission attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := o.clock.Sleep(ctx, wait); err != nil {
			return model.VerdictPending, canceled(ctx, err)
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, judge model.JudgeID, problemURL, content string, n int) (model.Verdict, error) {
	ctx = logger.With(ctx, contextkey.Attempt, n)
	sess, err := o.sessions.Acquire(ctx, judge)
	if err != nil {
		return model.VerdictPending, err
	}

	marker := model.NewMarker()
	ctx = logger.With(ctx, contextkey.Marker, string(marker))
	att := model.NewAttempt(judge, problemURL, content, marker, n, o.scratch.PathFor(marker))
	defer o.scratch.Remove(ctx, att.ArtifactPath())
	if err := o.scratch.Write(att); err != nil {
		return model.VerdictPending, err
	}

	rec, err := o.correlator.Correlate(ctx, sess, att)
	if err != nil {
		o.expire(ctx, sess, err)
		return model.VerdictPending, err
	}
	logger.Debug(ctx, "submission correlated", zap.String("id", string(rec.ID)))

	verdict, err := o.poller.Poll(ctx, sess, rec, o.cfg.PollTimeout)
	if err != nil {
		o.expire(ctx, sess, err)
		return model.VerdictPending, err
	}
	return verdict, nil
}

func (o *Orchestrator) expire(ctx context.Context, sess *session.Session, err error) {
	if appErr.Is(err, appErr.SessionExpired) {
		o.sessions.Invalidate(ctx, sess)
	}
}

func (o *Orchestrator) retryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.RetryInitial
	b.Multiplier = o.cfg.RetryMultiplier
	b.RandomizationFactor = o.cfg.Jitter
	b.MaxInterval = o.cfg.RetryMaxElapsed
	b.MaxElapsedTime = o.cfg.RetryMaxElapsed
	b.Clock = o.clock
	b.Reset()
	return b
}
