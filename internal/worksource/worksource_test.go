package worksource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wittyreference/feature-factory/internal/model"
)

type fakeSource struct {
	name  string
	items []model.WorkItem
	err   error
}

func (f fakeSource) Name() string       { return f.name }
func (f fakeSource) SourceType() string { return "fake" }
func (f fakeSource) Enabled() bool      { return true }
func (f fakeSource) Poll(ctx context.Context) ([]model.WorkItem, error) {
	return f.items, f.err
}

type recordedPoll struct {
	source    string
	duration  time.Duration
	itemCount int
	err       error
}

type fakeRecorder struct {
	calls []recordedPoll
}

func (f *fakeRecorder) RecordPoll(ctx context.Context, source string, duration time.Duration, itemCount int, err error) {
	f.calls = append(f.calls, recordedPoll{source, duration, itemCount, err})
}

func TestInstrumentedRecordsSuccessfulPoll(t *testing.T) {
	rec := &fakeRecorder{}
	src := Instrumented{
		Source: fakeSource{name: "manual-queue", items: []model.WorkItem{{ID: "w1"}, {ID: "w2"}}},
		Rec:    rec,
	}
	items, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items passed through, got %d", len(items))
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 recorded poll, got %d", len(rec.calls))
	}
	if rec.calls[0].source != "manual-queue" || rec.calls[0].itemCount != 2 || rec.calls[0].err != nil {
		t.Fatalf("unexpected recorded poll: %+v", rec.calls[0])
	}
}

func TestInstrumentedRecordsErroredPoll(t *testing.T) {
	rec := &fakeRecorder{}
	wantErr := errors.New("boom")
	src := Instrumented{Source: fakeSource{name: "debugger-alerts", err: wantErr}, Rec: rec}
	_, err := src.Poll(context.Background())
	if err != wantErr {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].err != wantErr {
		t.Fatalf("expected recorded error, got %+v", rec.calls)
	}
}

func TestInstrumentedToleratesNilRecorder(t *testing.T) {
	src := Instrumented{Source: fakeSource{name: "x"}}
	if _, err := src.Poll(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
