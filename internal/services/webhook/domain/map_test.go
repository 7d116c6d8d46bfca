package domain_test

import (
	"testing"
	"time"

	perr "nafbridge/internal/platform/errors"
	sync "nafbridge/internal/services/sync/domain"
	"nafbridge/internal/services/webhook/domain"
)

var at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMapTaskStatusChanged(t *testing.T) {
	op, disp, err := domain.MapEvent(domain.Event{
		EventType: domain.EventTaskStatusChanged,
		Data: map[string]any{
			"taskId":    "task_42",
			"newStatus": "active",
			"oldStatus": "draft",
		},
	}, at)
	if err != nil || disp != domain.DispositionSync {
		t.Fatalf("err=%v disp=%v", err, disp)
	}
	if op.Kind != sync.KindTaskStatus || op.Key != "task_42" {
		t.Fatalf("op = %+v", op)
	}
	if op.Task.Status != "active" {
		t.Fatalf("status = %q", op.Task.Status)
	}
	if op.Task.Metadata["oldStatus"] != "draft" {
		t.Fatalf("metadata = %v", op.Task.Metadata)
	}
}

func TestMapTaskCompletedForcesStatus(t *testing.T) {
	op, _, err := domain.MapEvent(domain.Event{
		EventType: domain.EventTaskCompleted,
		Data:      map[string]any{"taskId": "task_1", "completedBy": "u_1"},
	}, at)
	if err != nil {
		t.Fatal(err)
	}
	if op.Task.Status != "completed" {
		t.Fatalf("status = %q, want completed", op.Task.Status)
	}
}

func TestMapAllowlistWinnerSelected(t *testing.T) {
	op, _, err := domain.MapEvent(domain.Event{
		EventType: domain.EventAllowlistWinner,
		Data: map[string]any{
			"allowlistId": "al_7",
			"winners":     []any{"u_1", "u_2"},
		},
	}, at)
	if err != nil {
		t.Fatal(err)
	}
	if op.Kind != sync.KindAllowlistUpdate || op.Allowlist.UpdateType != "winner_selected" {
		t.Fatalf("op = %+v", op)
	}
	if _, ok := op.Allowlist.Changes["winners"]; !ok {
		t.Fatal("winners not carried over")
	}
}

func TestMapUserPointsEarned(t *testing.T) {
	op, _, err := domain.MapEvent(domain.Event{
		EventType: domain.EventUserPoints,
		Data: map[string]any{
			"userId":       "u_9",
			"pointsEarned": float64(50),
			"taskId":       "task_3",
		},
	}, at)
	if err != nil {
		t.Fatal(err)
	}
	if op.Kind != sync.KindUserProgress || op.Key != "u_9" {
		t.Fatalf("op = %+v", op)
	}
	evs := op.Progress.Events
	if len(evs) != 1 || evs[0].Type != "points_earned" {
		t.Fatalf("events = %+v", evs)
	}
	if evs[0].Data["pointsEarned"] != float64(50) {
		t.Fatalf("data = %v", evs[0].Data)
	}
}

func TestMapMissingEntityIDFails(t *testing.T) {
	_, _, err := domain.MapEvent(domain.Event{
		EventType: domain.EventTaskStatusChanged,
		Data:      map[string]any{"newStatus": "active"},
	}, at)
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestMapNotificationOnly(t *testing.T) {
	for _, et := range []domain.EventType{domain.EventCommunitySettings, domain.EventSystemMaintenance} {
		_, disp, err := domain.MapEvent(domain.Event{EventType: et}, at)
		if err != nil || disp != domain.DispositionNotify {
			t.Fatalf("%s: err=%v disp=%v", et, err, disp)
		}
	}
}

func TestMapUnknownType(t *testing.T) {
	_, disp, err := domain.MapEvent(domain.Event{EventType: "raffle.spun"}, at)
	if err != nil || disp != domain.DispositionUnknown {
		t.Fatalf("err=%v disp=%v", err, disp)
	}
}
