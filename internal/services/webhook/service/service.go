// Package service implements the webhook ingress pipeline
package service

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/logger"
	syncdom "nafbridge/internal/services/sync/domain"
	dom "nafbridge/internal/services/webhook/domain"
)

// event tail and registration layout in the KV cache
const (
	kvEventsWebhook = "events:webhook"
	kvEventsBounds  = 1000
	kvPeerPrefix    = "peer:"
	kvPeerTTL       = 24 * time.Hour
)

// Config controls the ingress pipeline
type Config struct {
	Secret string

	// BatchConcurrency bounds parallel handlers inside one batch
	BatchConcurrency int

	// BroadcastChannel receives notification-only events when set
	BroadcastChannel string
}

func (c *Config) defaults() {
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 10
	}
}

// Svc verifies, maps, and fans platform events into the sync engine
type Svc struct {
	cfg      Config
	deps     modkit.Deps
	verifier Verifier
	enq      syncdom.EnqueuePort
	chat     chat.Gateway
	clk      clock.Clock
	log      logger.Logger

	received  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	batches   atomic.Uint64
	lastAt    atomic.Int64
}

// New constructs the ingress service
func New(deps modkit.Deps, cfg Config, enq syncdom.EnqueuePort, gw chat.Gateway) *Svc {
	cfg.defaults()
	s := &Svc{
		cfg:      cfg,
		deps:     deps,
		verifier: NewVerifier(cfg.Secret),
		enq:      enq,
		chat:     gw,
		clk:      deps.Clock,
		log:      *logger.Named("webhook"),
	}
	if s.clk == nil {
		s.clk = clock.System{}
	}
	return s
}

// VerifySignature checks the raw body against the signature header.
// A mismatch counts as a failed webhook
func (s *Svc) VerifySignature(body []byte, signature string) error {
	if err := s.verifier.Verify(body, signature); err != nil {
		s.failed.Add(1)
		return err
	}
	return nil
}

// ProcessEvent handles one verified event
func (s *Svc) ProcessEvent(ctx context.Context, ev dom.Event) dom.Receipt {
	now := s.clk.Now()
	s.received.Add(1)
	s.lastAt.Store(now.UnixNano())

	syncID, handled, err := s.handle(ctx, ev, now)
	s.tail(ctx, ev, err)

	switch {
	case err != nil:
		s.failed.Add(1)
		s.log.Warn().Err(err).Str("event_type", string(ev.EventType)).Msg("webhook event failed")
		return dom.Receipt{Success: false, Processed: false, Timestamp: now}
	case !handled:
		s.log.Warn().Str("event_type", string(ev.EventType)).Msg("unknown webhook event type")
		return dom.Receipt{Success: true, Processed: false, Timestamp: now}
	default:
		s.processed.Add(1)
		return dom.Receipt{Success: true, Processed: true, SyncID: syncID, Timestamp: now}
	}
}

// ProcessBatch handles a verified batch with bounded all-settled
// concurrency. Mapped operations travel to the engine as one envelope
// so same-entity runs collapse on the batch tick
func (s *Svc) ProcessBatch(ctx context.Context, batch dom.Batch) dom.BatchReceipt {
	now := s.clk.Now()
	s.received.Add(1)
	s.batches.Add(1)
	s.lastAt.Store(now.UnixNano())

	type mapped struct {
		op  syncdom.Operation
		ok  bool
		err error
	}

	results := make([]mapped, len(batch.Events))
	sem := make(chan struct{}, s.cfg.BatchConcurrency)
	var wg stdsync.WaitGroup

	for i, ev := range batch.Events {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ev dom.Event) {
			defer wg.Done()
			defer func() { <-sem }()

			op, disp, err := dom.MapEvent(ev, now)
			switch {
			case err != nil:
				results[i] = mapped{err: err}
			case disp == dom.DispositionNotify:
				s.notify(ctx, ev)
				results[i] = mapped{ok: false}
			case disp == dom.DispositionUnknown:
				results[i] = mapped{ok: false}
			default:
				results[i] = mapped{op: op, ok: true}
			}
		}(i, ev)
	}
	wg.Wait()

	receipt := dom.BatchReceipt{
		Success:   true,
		BatchID:   batch.BatchID,
		Results:   make([]dom.EventResult, len(results)),
		Timestamp: now,
	}

	env := syncdom.BatchEnvelope{BatchID: batch.BatchID, ReceivedAt: now}
	for i, res := range results {
		switch {
		case res.err != nil:
			receipt.Failed++
			receipt.Results[i] = dom.EventResult{Success: false, Error: res.err.Error()}
		case res.ok:
			receipt.Processed++
			env.Ops = append(env.Ops, res.op)
			receipt.Results[i] = dom.EventResult{Success: true, SyncID: res.op.SyncID}
		default:
			receipt.Processed++
			receipt.Results[i] = dom.EventResult{Success: true}
		}
	}

	if len(env.Ops) > 0 && s.enq != nil {
		if err := s.enq.EnqueueBatch(ctx, env); err != nil {
			s.log.Error().Err(err).Str("batch_id", batch.BatchID).Msg("batch enqueue failed")
			receipt.Success = false
		}
	}

	s.processed.Add(uint64(receipt.Processed))
	s.failed.Add(uint64(receipt.Failed))
	s.tailBatch(ctx, batch, receipt.Failed)
	return receipt
}

// Register stores a peer handshake and hands back its registration id
func (s *Svc) Register(ctx context.Context, peer map[string]any) (dom.Registration, error) {
	reg := dom.Registration{
		RegistrationID: uuid.NewString(),
		Timestamp:      s.clk.Now(),
	}
	if s.deps.KV != nil {
		raw, err := json.Marshal(peer)
		if err == nil {
			if err := s.deps.KV.Set(ctx, kvPeerPrefix+reg.RegistrationID, raw, kvPeerTTL); err != nil {
				return dom.Registration{}, err
			}
		}
	}
	s.log.Info().Str("registration_id", reg.RegistrationID).Msg("webhook peer registered")
	return reg, nil
}

// Stats snapshots the ingress counters
func (s *Svc) Stats() dom.Stats {
	st := dom.Stats{
		Received:  s.received.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Batches:   s.batches.Load(),
	}
	if ns := s.lastAt.Load(); ns > 0 {
		st.LastWebhookAt = time.Unix(0, ns)
	}
	return st
}

// LastWebhookAt exposes the most recent intake time for health probes
func (s *Svc) LastWebhookAt() time.Time {
	ns := s.lastAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// handle maps and enqueues one event, handled=false means unknown type
func (s *Svc) handle(ctx context.Context, ev dom.Event, now time.Time) (syncID string, handled bool, err error) {
	op, disp, err := dom.MapEvent(ev, now)
	if err != nil {
		return "", true, err
	}

	switch disp {
	case dom.DispositionNotify:
		s.notify(ctx, ev)
		return "", true, nil
	case dom.DispositionUnknown:
		return "", false, nil
	}

	if s.enq == nil {
		return "", true, nil
	}
	id, err := s.enq.Enqueue(ctx, op)
	return id, true, err
}

// notify fans a notification-only event to the broadcast channel
func (s *Svc) notify(ctx context.Context, ev dom.Event) {
	if s.chat == nil || s.cfg.BroadcastChannel == "" {
		s.log.Info().Str("event_type", string(ev.EventType)).Msg("notification event, no broadcast channel")
		return
	}

	var content string
	switch ev.EventType {
	case dom.EventSystemMaintenance:
		msg, _ := ev.Data["message"].(string)
		if msg == "" {
			msg = "scheduled maintenance announced"
		}
		content = fmt.Sprintf(":warning: Naffles platform: %s", msg)
	default:
		content = "Community settings were updated on the Naffles platform"
	}

	if err := s.chat.SendMessage(ctx, s.cfg.BroadcastChannel, content); err != nil {
		s.log.Warn().Err(err).Str("event_type", string(ev.EventType)).Msg("broadcast failed")
	}
}

type tailEntry struct {
	At        time.Time     `json:"at"`
	EventType dom.EventType `json:"eventType"`
	BatchID   string        `json:"batchId,omitempty"`
	Events    int           `json:"events,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// tail appends the event to the bounded webhook tail, best effort
func (s *Svc) tail(ctx context.Context, ev dom.Event, evErr error) {
	if s.deps.KV == nil {
		return
	}
	entry := tailEntry{At: s.clk.Now(), EventType: ev.EventType}
	if evErr != nil {
		entry.Error = evErr.Error()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.deps.KV.Push(ctx, kvEventsWebhook, raw, kvEventsBounds); err != nil {
		s.log.Warn().Err(err).Msg("webhook tail push failed")
	}
}

func (s *Svc) tailBatch(ctx context.Context, batch dom.Batch, failed int) {
	if s.deps.KV == nil {
		return
	}
	entry := tailEntry{
		At:      s.clk.Now(),
		BatchID: batch.BatchID,
		Events:  len(batch.Events),
	}
	if failed > 0 {
		entry.Error = fmt.Sprintf("%d events failed", failed)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.deps.KV.Push(ctx, kvEventsWebhook, raw, kvEventsBounds); err != nil {
		s.log.Warn().Err(err).Msg("webhook tail push failed")
	}
}
