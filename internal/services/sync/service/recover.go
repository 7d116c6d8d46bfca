package service

import (
	"context"
	"encoding/json"
	"time"

	dom "nafbridge/internal/services/sync/domain"
)

// queue persistence layout in the KV cache
const (
	kvSyncPrefix = "sync:"
	kvSyncTTL    = time.Hour
)

// restore repopulates the queue from KV after a restart.
// Loaded keys are deleted so a crash between restore and the next
// persist never replays twice
func (s *Svc) restore(ctx context.Context) {
	if s.deps.KV == nil {
		return
	}

	keys, err := s.deps.KV.Keys(ctx, kvSyncPrefix)
	if err != nil {
		s.log.Warn().Err(err).Msg("queue restore listing failed")
		return
	}

	loaded := 0
	for _, key := range keys {
		raw, ok, err := s.deps.KV.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var op dom.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("queue restore decode failed")
			_ = s.deps.KV.Del(ctx, key)
			continue
		}
		op.State = dom.StatePending
		s.queue[op.SyncID] = op
		loaded++
		_ = s.deps.KV.Del(ctx, key)
	}

	if loaded > 0 {
		s.log.Info().Int("ops", loaded).Msg("queue restored from kv")
	}
	s.updateGauges()
}

// persist writes every non-active operation under the sync prefix
func (s *Svc) persist(ctx context.Context) {
	if s.deps.KV == nil {
		return
	}

	saved := 0
	for id, op := range s.queue {
		if _, busy := s.activeIDs[id]; busy {
			continue
		}
		raw, err := json.Marshal(op)
		if err != nil {
			continue
		}
		if err := s.deps.KV.Set(ctx, kvSyncPrefix+id, raw, kvSyncTTL); err != nil {
			s.log.Warn().Err(err).Str("sync_id", id).Msg("queue persist failed")
			continue
		}
		saved++
	}

	s.log.Info().Int("ops", saved).Msg("queue persisted to kv")
}
