package service

import (
	"context"
	"errors"
	"sync"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/adapters/naffles"
	perr "nafbridge/internal/platform/errors"
	dom "nafbridge/internal/services/sync/domain"
)

// updateTaskEmbeds refreshes every mirrored message for a task.
// The operation payload is merged over the authoritative snapshot so the
// embed never renders older state than the platform accepted
func (s *Svc) updateTaskEmbeds(ctx context.Context, op dom.Operation) error {
	refs, err := s.messageRefs(ctx, op)
	if err != nil || len(refs) == 0 {
		return err
	}

	snap, err := s.platform.Task(ctx, op.Key)
	if err != nil {
		return err
	}
	applyTaskPayload(&snap, op.Task)

	embed := chat.TaskEmbed(snap, s.clk.Now())
	notify := ""
	if s.cfg.NotifyOnStatusChange && op.Task.Status != "" {
		notify = chat.StatusNotification("Task", snap.Title, snap.Status)
	}
	return s.editAll(ctx, op, refs, embed, notify)
}

// updateAllowlistEmbeds refreshes every mirrored message for an allowlist
func (s *Svc) updateAllowlistEmbeds(ctx context.Context, op dom.Operation) error {
	refs, err := s.messageRefs(ctx, op)
	if err != nil || len(refs) == 0 {
		return err
	}

	snap, err := s.platform.Allowlist(ctx, op.Key)
	if err != nil {
		return err
	}
	applyAllowlistPayload(&snap, op.Allowlist)

	embed := chat.AllowlistEmbed(snap, s.clk.Now())
	notify := ""
	switch op.Allowlist.UpdateType {
	case "participant_added", "winner_selected":
		notify = chat.StatusNotification("Allowlist", snap.Title, op.Allowlist.UpdateType)
	}
	return s.editAll(ctx, op, refs, embed, notify)
}

func (s *Svc) messageRefs(ctx context.Context, op dom.Operation) ([]dom.MessageRef, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.MessagesFor(ctx, op.Kind, op.Key)
}

// editAll edits every message with all-settled semantics, a single
// failure never aborts the rest. Missing messages are skipped silently
func (s *Svc) editAll(ctx context.Context, op dom.Operation, refs []dom.MessageRef, embed chat.Embed, notify string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, ref := range refs {
		wg.Add(1)
		go func(ref dom.MessageRef) {
			defer wg.Done()

			if _, err := s.chat.ChannelMessage(ctx, ref.ChannelID, ref.MessageID); err != nil {
				if perr.IsCode(err, perr.ErrorCodeNotFound) {
					s.log.Debug().
						Str("channel_id", ref.ChannelID).
						Str("message_id", ref.MessageID).
						Msg("mirrored message gone, skipping")
					return
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			if err := s.chat.EditMessageEmbed(ctx, ref.ChannelID, ref.MessageID, embed); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			if notify != "" {
				if err := s.chat.SendMessage(ctx, ref.ChannelID, notify); err != nil {
					s.log.Warn().Err(err).
						Str("channel_id", ref.ChannelID).
						Str("sync_id", op.SyncID).
						Msg("notification send failed")
				}
			}
		}(ref)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// applyTaskPayload overlays the accepted change onto the snapshot
func applyTaskPayload(snap *naffles.TaskSnapshot, p *dom.TaskStatusPayload) {
	if p == nil {
		return
	}
	if p.Status != "" {
		snap.Status = p.Status
	}
	if v, ok := p.Metadata["title"].(string); ok && v != "" {
		snap.Title = v
	}
	if v, ok := p.Metadata["description"].(string); ok && v != "" {
		snap.Description = v
	}
	if n := asInt(p.Metadata["completedCount"]); n > 0 {
		snap.CompletedCount = n
	}
	if n := asInt(p.Metadata["totalRequired"]); n > 0 {
		snap.TotalRequired = n
	}
}

// applyAllowlistPayload overlays the accepted change onto the snapshot
func applyAllowlistPayload(snap *naffles.AllowlistSnapshot, p *dom.AllowlistPayload) {
	if p == nil {
		return
	}
	if v, ok := p.Changes["newStatus"].(string); ok && v != "" {
		snap.Status = v
	}
	if n := asInt(p.Changes["totalParticipants"]); n > 0 {
		snap.ParticipantCount = n
	}
	if winners, ok := p.Changes["winners"].([]any); ok && len(winners) > 0 {
		snap.WinnerCount = len(winners)
	}
}
