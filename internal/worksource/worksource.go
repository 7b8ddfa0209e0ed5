// Package worksource defines the pluggable work-item provider contract
// that feeds the external manual-queue, and the debugger-alert source
// that is one concrete implementation of it. Providers never drive the
// workflow state machine directly (see internal/workflow); they only
// produce candidate model.WorkItem records for whatever queues or
// dashboards sit in front of this orchestrator.
package worksource

import (
	"context"
	"time"

	"github.com/wittyreference/feature-factory/internal/model"
)

// Source is the contract every work-item provider satisfies: a name, a
// source-type tag, an enabled flag, and a poll cycle.
type Source interface {
	Name() string
	SourceType() string
	Enabled() bool
	Poll(ctx context.Context) ([]model.WorkItem, error)
}

// PollRecorder receives per-cycle timings and outcome for an instrumented
// poll, matching internal/metrics.Recorder.RecordPoll's signature without
// this package importing internal/metrics directly.
type PollRecorder interface {
	RecordPoll(ctx context.Context, source string, duration time.Duration, itemCount int, err error)
}

// Instrumented wraps a Source so every Poll cycle reports its duration,
// item count, and error status to rec. Neither subsystem participates
// in the workflow state machine; this only adds observability around
// the poll boundary.
type Instrumented struct {
	Source Source
	Rec    PollRecorder
}

func (i Instrumented) Name() string       { return i.Source.Name() }
func (i Instrumented) SourceType() string { return i.Source.SourceType() }
func (i Instrumented) Enabled() bool      { return i.Source.Enabled() }

func (i Instrumented) Poll(ctx context.Context) ([]model.WorkItem, error) {
	start := time.Now()
	items, err := i.Source.Poll(ctx)
	if i.Rec != nil {
		i.Rec.RecordPoll(ctx, i.Source.Name(), time.Since(start), len(items), err)
	}
	return items, err
}
