package service

import (
	"context"

	"nafbridge/internal/adapters/naffles"
	perr "nafbridge/internal/platform/errors"
	dom "nafbridge/internal/services/sync/domain"
)

// executeOp dispatches one operation to the platform and keeps chat in step
func (s *Svc) executeOp(ctx context.Context, op dom.Operation) error {
	switch op.Kind {
	case dom.KindTaskStatus:
		return s.executeTaskStatus(ctx, op)
	case dom.KindAllowlistUpdate:
		return s.executeAllowlist(ctx, op)
	case dom.KindUserProgress:
		return s.executeUserProgress(ctx, op)
	default:
		return perr.Validationf("unknown sync kind %q", op.Kind)
	}
}

func (s *Svc) executeTaskStatus(ctx context.Context, op dom.Operation) error {
	if op.Task == nil {
		return perr.Validationf("task payload missing on %s", op.SyncID)
	}
	body := naffles.TaskStatusSync{
		Status:    op.Task.Status,
		Source:    "discord",
		Metadata:  op.Task.Metadata,
		Timestamp: s.clk.Now(),
	}
	if err := s.platform.SyncTaskStatus(ctx, op.Key, body); err != nil {
		return err
	}
	return s.updateTaskEmbeds(ctx, op)
}

func (s *Svc) executeAllowlist(ctx context.Context, op dom.Operation) error {
	if op.Allowlist == nil {
		return perr.Validationf("allowlist payload missing on %s", op.SyncID)
	}
	body := naffles.AllowlistSync{
		UpdateType: op.Allowlist.UpdateType,
		Changes:    op.Allowlist.Changes,
		Source:     "discord",
		Timestamp:  s.clk.Now(),
	}
	if err := s.platform.SyncAllowlist(ctx, op.Key, body); err != nil {
		return err
	}
	return s.updateAllowlistEmbeds(ctx, op)
}

func (s *Svc) executeUserProgress(ctx context.Context, op dom.Operation) error {
	if op.Progress == nil {
		return perr.Validationf("progress payload missing on %s", op.SyncID)
	}
	events := make([]naffles.ProgressEvent, 0, len(op.Progress.Events))
	for _, ev := range op.Progress.Events {
		events = append(events, naffles.ProgressEvent{
			TaskID:    asString(ev.Data["taskId"]),
			Delta:     asInt(ev.Data["pointsEarned"]),
			Completed: ev.Type == "achievement_unlocked",
			At:        ev.At,
		})
	}
	body := naffles.UserProgressSync{
		Events:    events,
		Source:    "discord",
		Timestamp: s.clk.Now(),
	}
	return s.platform.SyncUserProgress(ctx, op.Key, body)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
