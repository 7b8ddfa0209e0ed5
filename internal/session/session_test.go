package session

import (
	"context"
	"testing"
	"time"

	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	state := &model.WorkflowState{
		SessionID:    "sess-1",
		Workflow:     "feature",
		Status:       model.StatusRunning,
		PhaseResults: map[model.AgentName]model.PhaseResult{},
		Checkpoints:  map[model.AgentName]string{},
		StartedAt:    time.Now().UTC(),
	}
	if err := s.Save(context.Background(), state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "sess-1" || got.Workflow != "feature" {
		t.Fatalf("unexpected round-tripped state: %+v", got)
	}
}

func TestGetMissingSessionReturnsSentinel(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("does-not-exist")
	if err != orcherr.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSortsByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	save := func(id string, at time.Time) {
		state := &model.WorkflowState{SessionID: id, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
		if err := s.Save(WithClock(context.Background(), at), state); err != nil {
			t.Fatal(err)
		}
	}
	save("old", base)
	save("newest", base.Add(2*time.Hour))
	save("middle", base.Add(1*time.Hour))

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	if list[0].SessionID != "newest" || list[1].SessionID != "middle" || list[2].SessionID != "old" {
		t.Fatalf("unexpected order: %v", []string{list[0].SessionID, list[1].SessionID, list[2].SessionID})
	}
}

func TestGetResumableReturnsMostRecentAwaitingApproval(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	running := &model.WorkflowState{SessionID: "running", Status: model.StatusRunning, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
	s.Save(WithClock(context.Background(), base.Add(3*time.Hour)), running)

	awaiting := &model.WorkflowState{SessionID: "awaiting", Status: model.StatusAwaitingApproval, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
	s.Save(WithClock(context.Background(), base.Add(1*time.Hour)), awaiting)

	got, err := s.GetResumable()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.SessionID != "awaiting" {
		t.Fatalf("expected the awaiting-approval session, got %+v", got)
	}
}

func TestCleanupDeletesOldAndFailedSessions(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := &model.WorkflowState{SessionID: "old", Status: model.StatusCompleted, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
	s.Save(WithClock(context.Background(), base), old)

	recentFailed := &model.WorkflowState{SessionID: "recent-failed", Status: model.StatusFailed, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
	s.Save(WithClock(context.Background(), time.Now().UTC()), recentFailed)

	keep := &model.WorkflowState{SessionID: "keep", Status: model.StatusRunning, PhaseResults: map[model.AgentName]model.PhaseResult{}, Checkpoints: map[model.AgentName]string{}}
	s.Save(WithClock(context.Background(), time.Now().UTC()), keep)

	deleted, err := s.Cleanup(CleanupOptions{OlderThan: 24 * time.Hour, IncludeFailed: true})
	if err != nil {
		t.Fatal(err)
	}
	deletedSet := map[string]bool{}
	for _, id := range deleted {
		deletedSet[id] = true
	}
	if !deletedSet["old"] || !deletedSet["recent-failed"] {
		t.Fatalf("expected old and recent-failed deleted, got %v", deleted)
	}
	if deletedSet["keep"] {
		t.Fatal("expected the running session to survive cleanup")
	}
}
