// Package batch runs a set of test files through the submission engine concurrently.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reftester/internal/judge/model"
	"reftester/internal/testfile"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/contextkey"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Submitter takes one parsed file to a final verdict.
type Submitter interface {
	Run(ctx context.Context, problemURL, content string) (model.Verdict, error)
}

// OutcomeSink receives every outcome as soon as its file finished.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, o model.Outcome) error
}

// BatchSink receives the batch result once all files finished.
type BatchSink interface {
	RecordBatch(ctx context.Context, res model.BatchResult) error
}

// sinkTimeout bounds one sink call. Sinks run on a context detached from batch
// cancellation so an interrupted run is still reported.
const sinkTimeout = 10 * time.Second

// Config holds runner dependencies and settings.
type Config struct {
	Parser    *testfile.Parser
	Submitter Submitter
	Clock     clock.Clock
	// Concurrency caps the number of files in flight; 0 runs all at once.
	Concurrency int
	Sinks       []OutcomeSink
	BatchSinks  []BatchSink
}

// Runner fans test files out to the submitter and collects their outcomes.
type Runner struct {
	parser      *testfile.Parser
	submitter   Submitter
	clock       clock.Clock
	concurrency int
	sinks       []OutcomeSink
	batchSinks  []BatchSink

	// sinkMu serialises sink calls so sinks need no locking of their own.
	sinkMu sync.Mutex
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if cfg.Parser == nil {
		cfg.Parser = testfile.NewParser(testfile.Config{})
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	return &Runner{
		parser:      cfg.Parser,
		submitter:   cfg.Submitter,
		clock:       cfg.Clock,
		concurrency: cfg.Concurrency,
		sinks:       cfg.Sinks,
		batchSinks:  cfg.BatchSinks,
	}, nil
}

// RunAll processes every path and returns the outcomes in input order. It returns
// only after every file finished, including after cancellation.
func (r *Runner) RunAll(ctx context.Context, paths []string) model.BatchResult {
	outcomes := make([]model.Outcome, len(paths))

	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			o := r.RunFile(ctx, path)
			outcomes[i] = o
			r.emit(ctx, o)
			return nil
		})
	}
	_ = g.Wait()

	res := model.NewBatchResult(outcomes)
	logger.Info(ctx, "batch finished",
		zap.Int("passed", res.Passed),
		zap.Int("failed", res.Failed),
		zap.Int("ignored", res.Ignored))
	for _, s := range r.batchSinks {
		sinkCtx, cancel := sinkContext(ctx)
		if err := s.RecordBatch(sinkCtx, res); err != nil {
			logger.Warn(ctx, "record batch failed", zap.Error(err))
		}
		cancel()
	}
	return res
}

// RunFile processes a single test file.
func (r *Runner) RunFile(ctx context.Context, path string) model.Outcome {
	ctx = logger.With(ctx, contextkey.File, path)
	start := r.clock.Now()
	o := r.runFile(ctx, path)
	o.Duration = r.clock.Now().Sub(start)

	switch o.Kind {
	case model.OutcomeAccepted, model.OutcomeIgnored:
		logger.Debug(ctx, "test file finished", zap.String("outcome", o.Kind.String()))
	default:
		logger.Warn(ctx, "test file failed", zap.String("outcome", o.Kind.String()), zap.Error(o.Err))
	}
	return o
}

func (r *Runner) runFile(ctx context.Context, path string) model.Outcome {
	if r.parser.Ignored(path) {
		return model.Outcome{Path: path, Kind: model.OutcomeIgnored}
	}
	tf, err := r.parser.Parse(path)
	if err != nil {
		return model.Outcome{Path: path, Kind: model.OutcomeParsingError, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return model.Outcome{Path: path, Kind: model.OutcomeSubmissionError, Err: appErr.Wrap(err, appErr.Canceled)}
	}

	verdict, err := r.submitter.Run(ctx, tf.ProblemURL, tf.Content)
	switch {
	case err != nil:
		return model.Outcome{Path: path, Kind: model.OutcomeSubmissionError, Err: err}
	case verdict == model.VerdictAccepted:
		return model.Outcome{Path: path, Kind: model.OutcomeAccepted}
	default:
		return model.Outcome{Path: path, Kind: model.OutcomeNotAccepted}
	}
}

func (r *Runner) emit(ctx context.Context, o model.Outcome) {
	if len(r.sinks) == 0 {
		return
	}
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	for _, s := range r.sinks {
		sinkCtx, cancel := sinkContext(ctx)
		if err := s.RecordOutcome(sinkCtx, o); err != nil {
			logger.Warn(ctx, "record outcome failed", zap.String("path", o.Path), zap.Error(err))
		}
		cancel()
	}
}

func sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
}
