package report

import (
	"time"

	"reftester/internal/judge/model"
)

// Event is the serialised form of one outcome, shared by every sink.
type Event struct {
	RunID      string    `json:"run_id"`
	Path       string    `json:"path"`
	Kind       string    `json:"kind"`
	Display    string    `json:"display"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// Summary is the serialised form of a batch result.
type Summary struct {
	RunID   string    `json:"run_id"`
	Passed  int       `json:"passed"`
	Failed  int       `json:"failed"`
	Ignored int       `json:"ignored"`
	OK      bool      `json:"ok"`
	At      time.Time `json:"at"`
}

func newEvent(runID string, o model.Outcome, at time.Time) Event {
	ev := Event{
		RunID:      runID,
		Path:       o.Path,
		Kind:       o.Kind.String(),
		Display:    o.Display(),
		DurationMs: o.Duration.Milliseconds(),
		At:         at,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	return ev
}

func newSummary(runID string, res model.BatchResult, at time.Time) Summary {
	return Summary{
		RunID:   runID,
		Passed:  res.Passed,
		Failed:  res.Failed,
		Ignored: res.Ignored,
		OK:      res.OK(),
		At:      at,
	}
}
