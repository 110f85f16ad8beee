// Package telemetry records per-stage timings for a reconciliation run. The
// recorder travels through context so instrumentation stays non-intrusive:
// without a recorder in the context every call is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type contextKey struct{}

var recorderKey = contextKey{}

// StageTiming is one completed stage measurement.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Recorder collects stage timings in completion order.
type Recorder struct {
	mu     sync.Mutex
	start  time.Time
	stages []StageTiming
}

// NewRecorder creates a Recorder; the run's total duration is measured from
// this moment.
func NewRecorder() *Recorder {
	return &Recorder{start: time.Now()}
}

// WithRecorder attaches a recorder to the context.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, r)
}

// FromContext extracts the recorder, or nil when telemetry is disabled.
func FromContext(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey).(*Recorder)
	return r
}

// Stage starts timing a stage and returns the function that ends it. Safe to
// call without a recorder in the context.
func Stage(ctx context.Context, name string) func() {
	r := FromContext(ctx)
	if r == nil {
		return func() {}
	}
	started := time.Now()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stages = append(r.stages, StageTiming{Name: name, Duration: time.Since(started)})
	}
}

// Stages returns the completed measurements in completion order.
func (r *Recorder) Stages() []StageTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageTiming, len(r.stages))
	copy(out, r.stages)
	return out
}

// Report writes the collected timings.
//
// Example output:
//
//	process CSV files: 12ms
//	fetch ledger transactions: 850ms
//	match transactions: 3ms
//	total: 14.2s
func (r *Recorder) Report(w io.Writer) {
	for _, stage := range r.Stages() {
		_, _ = fmt.Fprintf(w, "%s: %s\n", stage.Name, formatDuration(stage.Duration))
	}
	_, _ = fmt.Fprintf(w, "total: %s\n", formatDuration(time.Since(r.start)))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}
