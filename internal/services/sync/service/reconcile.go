package service

import (
	"context"

	dom "nafbridge/internal/services/sync/domain"
)

// Reconcile sweeps the entity message index and refreshes every mirrored
// embed from the authoritative platform snapshot. It runs to completion
// and returns the number of entities refreshed
func (s *Svc) Reconcile(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	entities, err := s.repo.IndexedEntities(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, e := range entities {
		select {
		case <-ctx.Done():
			return refreshed, ctx.Err()
		default:
		}

		now := s.clk.Now()
		var rerr error
		switch e.Kind {
		case dom.KindTaskStatus:
			op := dom.NewTaskStatus(e.Key, dom.TaskStatusPayload{}, now)
			rerr = s.updateTaskEmbeds(ctx, op)
		case dom.KindAllowlistUpdate:
			op := dom.NewAllowlistUpdate(e.Key, dom.AllowlistPayload{}, now)
			rerr = s.updateAllowlistEmbeds(ctx, op)
		default:
			continue
		}

		if rerr != nil {
			s.log.Warn().Err(rerr).
				Str("kind", string(e.Kind)).
				Str("key", e.Key).
				Msg("reconcile refresh failed")
			continue
		}
		refreshed++
	}

	s.log.Info().Int("entities", len(entities)).Int("refreshed", refreshed).Msg("reconcile sweep done")
	return refreshed, nil
}
