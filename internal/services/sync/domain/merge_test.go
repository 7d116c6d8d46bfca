package domain_test

import (
	"testing"
	"time"

	"nafbridge/internal/services/sync/domain"
)

func TestMergeTaskStatusLaterWins(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := domain.NewTaskStatus("task_1", domain.TaskStatusPayload{
		Status:   "live",
		Metadata: map[string]any{"source": "webhook", "old": "draft"},
	}, now)
	b := domain.NewTaskStatus("task_1", domain.TaskStatusPayload{
		Status:   "completed",
		Metadata: map[string]any{"completedBy": "u1"},
	}, now.Add(time.Second))

	m := domain.Merge(a, b)
	if m.Task.Status != "completed" {
		t.Fatalf("later status should win, got %q", m.Task.Status)
	}
	if m.Task.Metadata["old"] != "draft" || m.Task.Metadata["completedBy"] != "u1" {
		t.Fatalf("metadata shallow merge: %#v", m.Task.Metadata)
	}
	if m.SyncID != a.SyncID {
		t.Fatalf("merge must keep the earlier identity")
	}
}

func TestMergeTaskStatusEmptyLaterKeepsEarlier(t *testing.T) {
	now := time.Now()
	a := domain.NewTaskStatus("t", domain.TaskStatusPayload{Status: "paused"}, now)
	b := domain.NewTaskStatus("t", domain.TaskStatusPayload{}, now)

	if m := domain.Merge(a, b); m.Task.Status != "paused" {
		t.Fatalf("empty later status must not clobber, got %q", m.Task.Status)
	}
}

func TestMergeAllowlistCollapsesToBatchUpdate(t *testing.T) {
	now := time.Now()
	a := domain.NewAllowlistUpdate("al_1", domain.AllowlistPayload{
		UpdateType: "participant_added",
		Changes:    map[string]any{"totalParticipants": 10},
	}, now)
	b := domain.NewAllowlistUpdate("al_1", domain.AllowlistPayload{
		UpdateType: "winner_selected",
		Changes:    map[string]any{"winners": []string{"u1"}},
	}, now)

	m := domain.Merge(a, b)
	if m.Allowlist.UpdateType != "batch_update" {
		t.Fatalf("mixed types must collapse, got %q", m.Allowlist.UpdateType)
	}
	if m.Allowlist.Changes["totalParticipants"] != 10 {
		t.Fatalf("changes shallow merge lost earlier key: %#v", m.Allowlist.Changes)
	}
}

func TestMergeAllowlistSameTypeKept(t *testing.T) {
	now := time.Now()
	a := domain.NewAllowlistUpdate("al", domain.AllowlistPayload{UpdateType: "participant_added"}, now)
	b := domain.NewAllowlistUpdate("al", domain.AllowlistPayload{UpdateType: "participant_added"}, now)

	if m := domain.Merge(a, b); m.Allowlist.UpdateType != "participant_added" {
		t.Fatalf("same type should be kept, got %q", m.Allowlist.UpdateType)
	}
}

func TestMergeProgressPreservesOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := domain.NewUserProgress("u1", domain.ProgressPayload{Events: []domain.ProgressEvent{
		{Type: "points_earned", At: now},
	}}, now)
	b := domain.NewUserProgress("u1", domain.ProgressPayload{Events: []domain.ProgressEvent{
		{Type: "achievement_unlocked", At: now.Add(time.Second)},
	}}, now.Add(time.Second))

	m := domain.Merge(a, b)
	if len(m.Progress.Events) != 2 {
		t.Fatalf("events must accumulate, got %d", len(m.Progress.Events))
	}
	if m.Progress.Events[0].Type != "points_earned" || m.Progress.Events[1].Type != "achievement_unlocked" {
		t.Fatalf("order lost: %+v", m.Progress.Events)
	}
}

func TestCollapseEquivalentToSequentialMerge(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ops := []domain.Operation{
		domain.NewTaskStatus("t", domain.TaskStatusPayload{Status: "live", Metadata: map[string]any{"a": 1}}, now),
		domain.NewTaskStatus("t", domain.TaskStatusPayload{Status: "paused", Metadata: map[string]any{"b": 2}}, now),
		domain.NewTaskStatus("t", domain.TaskStatusPayload{Status: "completed"}, now),
	}

	c := domain.Collapse(ops)
	step := domain.Merge(domain.Merge(ops[0], ops[1]), ops[2])

	if c.Task.Status != step.Task.Status || c.Task.Status != "completed" {
		t.Fatalf("collapse diverged: %q vs %q", c.Task.Status, step.Task.Status)
	}
	if c.Task.Metadata["a"] != 1 || c.Task.Metadata["b"] != 2 {
		t.Fatalf("collapse metadata: %#v", c.Task.Metadata)
	}
}

func TestNewSyncIDFormat(t *testing.T) {
	now := time.UnixMilli(1_700_000_123_456)
	id := domain.NewSyncID(domain.KindTaskStatus, "task_9", now)
	if id != "task_status_task_9_1700000123456" {
		t.Fatalf("unexpected sync id: %q", id)
	}
}

func TestEntityKeySeparatesKinds(t *testing.T) {
	now := time.Now()
	a := domain.NewTaskStatus("x", domain.TaskStatusPayload{}, now)
	b := domain.NewAllowlistUpdate("x", domain.AllowlistPayload{}, now)
	if a.EntityKey() == b.EntityKey() {
		t.Fatalf("different kinds on one key must not collide")
	}
}
