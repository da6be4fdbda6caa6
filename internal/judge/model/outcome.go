package model

import (
	"fmt"
	"time"
)

// OutcomeKind classifies how one test file ended.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeNotAccepted
	OutcomeIgnored
	OutcomeParsingError
	OutcomeSubmissionError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeNotAccepted:
		return "not_accepted"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeParsingError:
		return "parsing_error"
	case OutcomeSubmissionError:
		return "submission_error"
	default:
		return "unknown"
	}
}

// Outcome is the per-file result of a batch run.
type Outcome struct {
	Path     string
	Kind     OutcomeKind
	Err      error
	Duration time.Duration
}

// Display renders the outcome the way the report prints it.
func (o Outcome) Display() string {
	switch o.Kind {
	case OutcomeAccepted:
		return "OK"
	case OutcomeNotAccepted:
		return "FAILED: wrong verdict"
	case OutcomeIgnored:
		return "IGNORED"
	default:
		if o.Err == nil {
			return "FAILED"
		}
		return "FAILED: " + o.Err.Error()
	}
}

// Line renders the one-line report entry of the outcome.
func (o Outcome) Line() string {
	return fmt.Sprintf("%s ... %s", o.Path, o.Display())
}

// Passed reports whether the outcome counts as passed.
func (o Outcome) Passed() bool {
	return o.Kind == OutcomeAccepted
}

// BatchResult aggregates the outcomes of one run. Outcomes keep input order.
type BatchResult struct {
	Passed   int
	Failed   int
	Ignored  int
	Outcomes []Outcome
}

// NewBatchResult counts the given outcomes.
func NewBatchResult(outcomes []Outcome) BatchResult {
	res := BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeAccepted:
			res.Passed++
		case OutcomeIgnored:
			res.Ignored++
		default:
			res.Failed++
		}
	}
	return res
}

// OK reports whether no file failed.
func (r BatchResult) OK() bool {
	return r.Failed == 0
}

// Summary renders the final status line.
func (r BatchResult) Summary() string {
	status := "ok"
	if !r.OK() {
		status = "FAILED"
	}
	return fmt.Sprintf("%s. %d passed; %d failed; %d ignored", status, r.Passed, r.Failed, r.Ignored)
}
