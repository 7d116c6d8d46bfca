package service

import (
	"context"
	"time"

	perr "nafbridge/internal/platform/errors"
	dom "nafbridge/internal/services/sync/domain"
)

// Run drives the engine until ctx is done, then drains in-flight work
// and persists the remaining queue
func (s *Svc) Run(ctx context.Context) error {
	s.restore(ctx)

	processT := time.NewTicker(s.cfg.ProcessInterval)
	batchT := time.NewTicker(s.cfg.BatchInterval)
	cleanupT := time.NewTicker(s.cfg.CleanupInterval)
	defer processT.Stop()
	defer batchT.Stop()
	defer cleanupT.Stop()

	s.log.Info().
		Dur("process", s.cfg.ProcessInterval).
		Dur("batch", s.cfg.BatchInterval).
		Dur("cleanup", s.cfg.CleanupInterval).
		Int("restored", len(s.queue)).
		Msg("sync engine started")

	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.persist(context.WithoutCancel(ctx))
			return ctx.Err()

		case op := <-s.enq:
			s.accept(op)

		case env := <-s.batchCh:
			s.batchQueue = append(s.batchQueue, env)
			s.updateGauges()

		case res := <-s.results:
			s.onResult(res)

		case <-processT.C:
			s.processDue(ctx)

		case <-batchT.C:
			s.processBatches()

		case <-cleanupT.C:
			s.cleanup()
		}
	}
}

// accept admits one operation into the queue
func (s *Svc) accept(op dom.Operation) {
	op.State = dom.StatePending
	s.queue[op.SyncID] = op
	s.metrics.syncOperations.Add(1)
	s.updateGauges()
}

// processDue launches ready operations up to the pick budget
// an entity with an in-flight operation is never picked again
func (s *Svc) processDue(ctx context.Context) {
	now := s.clk.Now()
	budget := s.cfg.PickBatch - len(s.activeIDs)

	for id, op := range s.queue {
		if budget <= 0 {
			break
		}
		if _, busy := s.activeIDs[id]; busy {
			continue
		}
		if _, entityBusy := s.activeKeys[op.EntityKey()]; entityBusy {
			continue
		}
		if until, cooled := s.cooldowns[id]; cooled && now.Before(until) {
			continue
		}
		if !op.NextAttempt.IsZero() && now.Before(op.NextAttempt) {
			continue
		}

		op.State = dom.StateProcessing
		op.LastAttempt = now
		s.queue[id] = op
		s.activeIDs[id] = struct{}{}
		s.activeKeys[op.EntityKey()] = struct{}{}
		budget--

		go s.launch(ctx, op)
	}
	s.updateGauges()
}

// launch executes one operation and reports back to the loop
func (s *Svc) launch(ctx context.Context, op dom.Operation) {
	start := s.clk.Now()
	err := s.exec(ctx, op)
	s.results <- result{op: op, err: err, elapsed: s.clk.Since(start)}
}

// onResult applies the outcome of one execution to loop state
func (s *Svc) onResult(res result) {
	op := res.op
	delete(s.activeIDs, op.SyncID)
	delete(s.activeKeys, op.EntityKey())

	now := s.clk.Now()

	switch {
	case res.err == nil:
		delete(s.queue, op.SyncID)
		s.metrics.successfulSyncs.Add(1)
		s.metrics.observe(res.elapsed, now)
		s.audit(op, "success", res.elapsed)

	case perr.Retryable(res.err) && op.RetryCount < s.cfg.MaxRetries:
		op.RetryCount++
		op.State = dom.StatePending
		op.NextAttempt = now.Add(time.Duration(op.RetryCount) * s.cfg.RetryDelay)
		s.queue[op.SyncID] = op
		s.log.Warn().Err(res.err).
			Str("sync_id", op.SyncID).
			Int("retry", op.RetryCount).
			Time("next_attempt", op.NextAttempt).
			Msg("sync retry scheduled")

	default:
		delete(s.queue, op.SyncID)
		s.cooldowns[op.SyncID] = now.Add(s.cfg.Cooldown)
		s.metrics.failedSyncs.Add(1)
		s.log.Error().Err(res.err).
			Str("sync_id", op.SyncID).
			Int("retries", op.RetryCount).
			Msg("sync dropped")
		s.audit(op, "drop", res.elapsed)
	}
	s.updateGauges()
}

// processBatches drains envelopes, collapses same-key runs, and requeues.
// High priority envelopes drain first, FIFO within each priority
func (s *Svc) processBatches() {
	n := len(s.batchQueue)
	if n > s.cfg.BatchSize {
		n = s.cfg.BatchSize
	}
	if n == 0 {
		return
	}

	envs := make([]dom.BatchEnvelope, 0, n)
	rest := make([]dom.BatchEnvelope, 0, len(s.batchQueue)-n)
	for _, pri := range []dom.Priority{dom.PriorityHigh, dom.PriorityNormal} {
		for _, env := range s.batchQueue {
			if env.Priority != pri {
				continue
			}
			if len(envs) < n {
				envs = append(envs, env)
			} else {
				rest = append(rest, env)
			}
		}
	}
	s.batchQueue = rest

	// group by entity preserving first-seen order
	order := make([]string, 0, 16)
	groups := make(map[string][]dom.Operation, 16)
	for _, env := range envs {
		for _, op := range env.Ops {
			k := op.EntityKey()
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], op)
		}
	}

	for _, k := range order {
		merged := dom.Collapse(groups[k])
		s.accept(merged)
	}

	s.metrics.batchesProcessed.Add(uint64(n))
	s.updateGauges()
	s.auditBatch(n, len(order))

	s.log.Debug().
		Int("envelopes", n).
		Int("merged_ops", len(order)).
		Msg("batch collapse done")
}

// cleanup drops stale operations and expired cooldowns
func (s *Svc) cleanup() {
	now := s.clk.Now()

	for id, op := range s.queue {
		if _, busy := s.activeIDs[id]; busy {
			continue
		}
		if now.Sub(op.CreatedAt) > s.cfg.MaxAge {
			delete(s.queue, id)
			s.log.Warn().Str("sync_id", id).Msg("stale sync dropped")
		}
	}
	for id, until := range s.cooldowns {
		if !now.Before(until) {
			delete(s.cooldowns, id)
		}
	}
	s.updateGauges()
}

// drain waits for every in-flight execution to report back
func (s *Svc) drain() {
	for len(s.activeIDs) > 0 {
		s.onResult(<-s.results)
	}
}
