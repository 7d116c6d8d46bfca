package service

import (
	"context"
	"encoding/json"
	"time"

	dom "nafbridge/internal/services/sync/domain"
)

// audit sink layout
const (
	auditTable     = "bridge_sync_audit"
	kvEventsSync   = "events:sync"
	kvEventsBatch  = "events:batch"
	kvEventsBounds = 1000
)

var auditCols = []string{"ts", "sync_id", "kind", "entity_key", "outcome", "retry_count", "elapsed_ms"}

type auditEvent struct {
	TS         time.Time `json:"ts"`
	SyncID     string    `json:"syncId"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Outcome    string    `json:"outcome"`
	RetryCount int       `json:"retryCount"`
	ElapsedMs  int64     `json:"elapsedMs"`
}

// audit records a terminal outcome, failures here never fail the sync
func (s *Svc) audit(op dom.Operation, outcome string, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev := auditEvent{
		TS:         s.clk.Now(),
		SyncID:     op.SyncID,
		Kind:       string(op.Kind),
		Key:        op.Key,
		Outcome:    outcome,
		RetryCount: op.RetryCount,
		ElapsedMs:  elapsed.Milliseconds(),
	}

	if s.deps.CH != nil {
		row := []any{ev.TS, ev.SyncID, ev.Kind, ev.Key, ev.Outcome, ev.RetryCount, ev.ElapsedMs}
		if err := s.deps.CH.Insert(ctx, auditTable, auditCols, [][]any{row}); err != nil {
			s.log.Warn().Err(err).Str("sync_id", op.SyncID).Msg("audit ch append failed")
		}
	}

	if s.deps.KV != nil {
		raw, err := json.Marshal(ev)
		if err == nil {
			if err := s.deps.KV.Push(ctx, kvEventsSync, raw, kvEventsBounds); err != nil {
				s.log.Warn().Err(err).Msg("audit kv push failed")
			}
		}
	}
}

type batchAuditEvent struct {
	TS        time.Time `json:"ts"`
	Envelopes int       `json:"envelopes"`
	MergedOps int       `json:"mergedOps"`
}

// auditBatch records one collapse pass in the bounded batch event list
func (s *Svc) auditBatch(envelopes, mergedOps int) {
	if s.deps.KV == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(batchAuditEvent{TS: s.clk.Now(), Envelopes: envelopes, MergedOps: mergedOps})
	if err != nil {
		return
	}
	if err := s.deps.KV.Push(ctx, kvEventsBatch, raw, kvEventsBounds); err != nil {
		s.log.Warn().Err(err).Msg("batch audit kv push failed")
	}
}
