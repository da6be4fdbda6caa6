package report

import (
	"context"
	"fmt"

	"reftester/internal/common/db"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
)

// HistorySchema creates the tables HistorySink writes to.
var HistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS test_runs (
	run_id VARCHAR(64) NOT NULL PRIMARY KEY,
	passed INT NOT NULL,
	failed INT NOT NULL,
	ignored INT NOT NULL,
	ok TINYINT(1) NOT NULL,
	finished_at DATETIME(3) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS test_outcomes (
	run_id VARCHAR(64) NOT NULL,
	path VARCHAR(512) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	display TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	regressed TINYINT(1) NOT NULL DEFAULT 0,
	recorded_at DATETIME(3) NOT NULL,
	PRIMARY KEY (run_id, path),
	KEY idx_path_recorded (path, recorded_at)
)`,
}

const (
	insertRun     = "INSERT INTO test_runs (run_id, passed, failed, ignored, ok, finished_at) VALUES (?, ?, ?, ?, ?, ?)"
	insertOutcome = "INSERT INTO test_outcomes (run_id, path, kind, display, duration_ms, regressed, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	// selectPrevious finds the latest kind recorded for a path by an earlier run.
	selectPrevious = "SELECT kind FROM test_outcomes WHERE path = ? AND run_id <> ? ORDER BY recorded_at DESC LIMIT 1"
)

// HistorySink stores each batch and its outcomes in a SQL database.
type HistorySink struct {
	db    db.Database
	runID string
	clock clock.Clock
}

func NewHistorySink(database db.Database, runID string, clk clock.Clock) (*HistorySink, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &HistorySink{db: database, runID: runID, clock: clk}, nil
}

// EnsureSchema creates the history tables if they are missing.
func (s *HistorySink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range HistorySchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "create history schema failed")
		}
	}
	return nil
}

// RecordBatch writes the run row and one row per outcome in a single transaction.
// An outcome that fails where the previous run of the same file passed is stored
// as regressed. A run id that is already stored is left untouched.
func (s *HistorySink) RecordBatch(ctx context.Context, res model.BatchResult) error {
	sum := newSummary(s.runID, res, s.clock.Now())
	regressions := 0
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := tx.Exec(ctx, insertRun, sum.RunID, sum.Passed, sum.Failed, sum.Ignored, sum.OK, sum.At); err != nil {
			return err
		}
		for _, o := range res.Outcomes {
			regressed, err := s.regressed(ctx, tx, o)
			if err != nil {
				return err
			}
			if regressed {
				regressions++
				logger.Warn(ctx, "test regressed", zap.String("path", o.Path), zap.String("display", o.Display()))
			}
			ev := newEvent(s.runID, o, sum.At)
			if _, err := tx.Exec(ctx, insertOutcome, ev.RunID, ev.Path, ev.Kind, ev.Display, ev.DurationMs, regressed, sum.At); err != nil {
				return err
			}
		}
		return nil
	})
	if key, dup := db.UniqueViolation(err); dup {
		logger.Warn(ctx, "run already recorded", zap.String("run_id", s.runID), zap.String("key", key))
		return nil
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record run history failed")
	}
	if regressions > 0 {
		logger.Warn(ctx, "run has regressions", zap.String("run_id", s.runID), zap.Int("count", regressions))
	}
	return nil
}

// regressed reports whether o is a failure of a file whose last recorded run passed.
// Ignored files and files without history never regress.
func (s *HistorySink) regressed(ctx context.Context, q db.Querier, o model.Outcome) (bool, error) {
	if o.Kind == model.OutcomeIgnored || o.Kind == model.OutcomeAccepted {
		return false, nil
	}
	var previous string
	err := q.QueryRow(ctx, selectPrevious, o.Path, s.runID).Scan(&previous)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return previous == model.OutcomeAccepted.String(), nil
}
