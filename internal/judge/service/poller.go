package service

import (
	"context"
	"time"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	"reftester/internal/judge/session"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultPollInterval     = 2 * time.Second
	defaultPollMaxTransient = 3
)

// Poller waits for a bound submission to reach a final verdict.
type Poller struct {
	clock        clock.Clock
	interval     time.Duration
	maxTransient int
}

// NewPoller creates a poller checking every interval. Up to maxTransient
// consecutive transient adapter errors are retried in place.
func NewPoller(clk clock.Clock, interval time.Duration, maxTransient int) *Poller {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxTransient <= 0 {
		maxTransient = defaultPollMaxTransient
	}
	return &Poller{clock: clk, interval: interval, maxTransient: maxTransient}
}

// Poll returns Accepted or Rejected, never Pending. Running out of time, or of
// transient error retries, yields PollTimeout.
func (p *Poller) Poll(ctx context.Context, sess *session.Session, rec model.SubmissionRecord, timeout time.Duration) (model.Verdict, error) {
	deadline := p.clock.Now().Add(timeout)
	transient := 0
	for polls := 1; ; polls++ {
		var verdict model.Verdict
		err := sess.Use(ctx, func(a adapter.Adapter) error {
			var err error
			verdict, err = a.PollVerdict(ctx, rec.ID)
			return err
		})
		switch {
		case err == nil:
			transient = 0
			if verdict.IsFinal() {
				logger.Debug(ctx, "verdict received",
					zap.String("id", string(rec.ID)),
					zap.Stringer("verdict", verdict),
					zap.Int("polls", polls))
				return verdict, nil
			}
		case ctx.Err() != nil || appErr.IsContext(err):
			return model.VerdictPending, canceled(ctx, err)
		case appErr.Is(err, appErr.SessionExpired):
			return model.VerdictPending, err
		case appErr.IsTransient(err):
			transient++
			if transient > p.maxTransient {
				return model.VerdictPending, appErr.Wrapf(err, appErr.PollTimeout,
					"polling submission %s failed %d times in a row", rec.ID, transient)
			}
			logger.Debug(ctx, "verdict poll failed, retrying", zap.String("id", string(rec.ID)), zap.Error(err))
		default:
			return model.VerdictPending, err
		}

		now := p.clock.Now()
		if !now.Before(deadline) {
			return model.VerdictPending, appErr.Newf(appErr.PollTimeout,
				"submission %s still pending after %s", rec.ID, timeout)
		}
		wait := p.interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return model.VerdictPending, canceled(ctx, err)
		}
	}
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
