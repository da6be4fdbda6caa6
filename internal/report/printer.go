// Package report renders batch outcomes and ships them to optional sinks.
package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"reftester/internal/judge/model"
)

// Printer writes one line per finished file and the batch summary.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) RecordOutcome(_ context.Context, o model.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, o.Line())
	return err
}

func (p *Printer) RecordBatch(_ context.Context, res model.BatchResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "\n%s\n", res.Summary())
	return err
}
