package metrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopRecorderNeverPanics(t *testing.T) {
	r := Noop()
	r.RecordPhase(context.Background(), "dev", "completed", time.Millisecond, 1)
	r.RecordTool(context.Background(), "write_file", time.Millisecond, nil)
	r.RecordPoll(context.Background(), "manual-queue", time.Millisecond, 3, errors.New("x"))
}

func TestNilRecorderNeverPanics(t *testing.T) {
	var r *Recorder
	r.RecordPhase(context.Background(), "dev", "failed", time.Millisecond, 0)
	r.RecordTool(context.Background(), "bash", time.Millisecond, nil)
	r.RecordPoll(context.Background(), "debugger-alerts", time.Millisecond, 0, nil)
}

func TestNewPrometheusRecorderBuildsAllInstruments(t *testing.T) {
	rec, provider, err := NewPrometheusRecorder("feature_factory_test")
	if err != nil {
		t.Fatalf("NewPrometheusRecorder: %v", err)
	}
	defer provider.Shutdown(context.Background())

	if rec.phaseDuration == nil || rec.phaseTotal == nil || rec.phaseRetries == nil {
		t.Fatal("expected phase instruments to be initialized")
	}
	if rec.toolDuration == nil || rec.toolTotal == nil || rec.toolErrors == nil {
		t.Fatal("expected tool instruments to be initialized")
	}
	if rec.pollDuration == nil || rec.pollItems == nil || rec.pollErrors == nil {
		t.Fatal("expected poll instruments to be initialized")
	}

	// Recording through the real instruments must not panic or error.
	rec.RecordPhase(context.Background(), "architect", "completed", 2*time.Second, 0)
	rec.RecordTool(context.Background(), "read_file", 10*time.Millisecond, nil)
	rec.RecordPoll(context.Background(), "manual-queue", 5*time.Millisecond, 1, nil)
}
