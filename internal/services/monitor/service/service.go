// Package service implements periodic health sampling, alerting, and
// operator recommendations
package service

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/logger"
	dom "nafbridge/internal/services/monitor/domain"
	policydom "nafbridge/internal/services/policy/domain"
	syncdom "nafbridge/internal/services/sync/domain"
	webhookdom "nafbridge/internal/services/webhook/domain"
)

// snapshot persistence in the KV cache
const (
	kvPerfKey = "metrics:performance"
	kvPerfTTL = 5 * time.Minute
)

// WebhookStats is the ingress counter source
type WebhookStats interface {
	Stats() webhookdom.Stats
}

// Sources are the counter feeds the monitor samples, any may be nil
type Sources struct {
	Sync    syncdom.StatsPort
	Webhook WebhookStats
	Policy  policydom.StatsPort
}

// Config controls sampling, alert thresholds, and recommendations
type Config struct {
	Interval      time.Duration
	MaxHistory    int
	AlertCooldown time.Duration

	RecInterval time.Duration
	RecCacheTTL time.Duration
	RecWindow   int

	FailureRateMax   float64
	AvgSyncMsMax     float64
	QueueMax         int
	QueueCriticalMax int
	ActiveMax        int
	BatchQueueMax    int
	CooldownMax      int
	CooldownCritical int
	WebhookStale     time.Duration

	// AdminGuildID receives critical alerts when set
	AdminGuildID string
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 1000
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = 5 * time.Minute
	}
	if c.RecInterval <= 0 {
		c.RecInterval = 5 * time.Minute
	}
	if c.RecCacheTTL <= 0 {
		c.RecCacheTTL = 10 * time.Minute
	}
	if c.RecWindow <= 0 {
		c.RecWindow = 10
	}
	if c.FailureRateMax <= 0 {
		c.FailureRateMax = 0.1
	}
	if c.AvgSyncMsMax <= 0 {
		c.AvgSyncMsMax = 5000
	}
	if c.QueueMax <= 0 {
		c.QueueMax = 100
	}
	if c.QueueCriticalMax <= 0 {
		c.QueueCriticalMax = 200
	}
	if c.ActiveMax <= 0 {
		c.ActiveMax = 50
	}
	if c.BatchQueueMax <= 0 {
		c.BatchQueueMax = 100
	}
	if c.CooldownMax <= 0 {
		c.CooldownMax = 10
	}
	if c.CooldownCritical <= 0 {
		c.CooldownCritical = 20
	}
	if c.WebhookStale <= 0 {
		c.WebhookStale = 10 * time.Minute
	}
}

// Svc samples counters and never causes application failure
type Svc struct {
	cfg  Config
	deps modkit.Deps
	src  Sources
	chat chat.Gateway
	clk  clock.Clock
	log  logger.Logger

	mu        stdsync.RWMutex
	history   []dom.HealthSnapshot
	alerts    []dom.AlertRecord
	lastAlert map[string]time.Time
	recs      []dom.Recommendation
	recAt     time.Time
}

// New constructs the monitor
func New(deps modkit.Deps, cfg Config, src Sources, gw chat.Gateway) *Svc {
	cfg.defaults()
	s := &Svc{
		cfg:       cfg,
		deps:      deps,
		src:       src,
		chat:      gw,
		clk:       deps.Clock,
		log:       *logger.Named("monitor"),
		lastAlert: make(map[string]time.Time),
	}
	if s.clk == nil {
		s.clk = clock.System{}
	}
	return s
}

// SetWebhookSource late-binds the ingress counters, the ingress module
// is constructed after the monitor. Call before Run
func (s *Svc) SetWebhookSource(wh WebhookStats) { s.src.Webhook = wh }

// Run samples on a cadence until ctx is done
func (s *Svc) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Msg("monitor started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Sample(ctx)
		}
	}
}

// Sample takes one snapshot, evaluates alerts, and refreshes
// recommendations when their interval elapsed
func (s *Svc) Sample(ctx context.Context) dom.HealthSnapshot {
	now := s.clk.Now()
	snap := s.snapshot(now)

	s.mu.Lock()
	s.history = append(s.history, snap)
	if len(s.history) > s.cfg.MaxHistory {
		s.history = s.history[len(s.history)-s.cfg.MaxHistory:]
	}
	recDue := now.Sub(s.recAt) >= s.cfg.RecInterval
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.evaluateAlerts(ctx, snap)
	if recDue {
		s.recompute(now)
	}
	return snap
}

// snapshot gathers counters and computes the health rollup
func (s *Svc) snapshot(now time.Time) dom.HealthSnapshot {
	snap := dom.HealthSnapshot{At: now}

	if s.src.Sync != nil {
		st := s.src.Sync.Stats()
		snap.QueueSize = st.QueueSize
		snap.ActiveCount = st.ActiveCount
		snap.BatchQueueSize = st.BatchQueueSize
		snap.Cooldowns = st.CooldownCount
		snap.AverageSyncTimeMs = st.AverageSyncTimeMs
		snap.FailureRate = st.FailureRate()
		snap.SyncOperations = st.SyncOperations
		snap.SuccessfulSyncs = st.SuccessfulSyncs
		snap.FailedSyncs = st.FailedSyncs
		snap.WebhookEvents = st.WebhookEvents
		snap.BatchesProcessed = st.BatchesProcessed
	}
	if s.src.Webhook != nil {
		snap.LastWebhookAt = s.src.Webhook.Stats().LastWebhookAt
	}

	snap.Components = s.rollup(snap, now)
	snap.Overall = dom.StatusHealthy
	for _, st := range snap.Components {
		snap.Overall = dom.Worse(snap.Overall, st)
	}
	return snap
}

func (s *Svc) rollup(snap dom.HealthSnapshot, now time.Time) map[string]dom.Status {
	out := map[string]dom.Status{
		dom.ComponentSyncQueue:     dom.StatusHealthy,
		dom.ComponentBatch:         dom.StatusHealthy,
		dom.ComponentWebhook:       dom.StatusHealthy,
		dom.ComponentErrorRecovery: dom.StatusHealthy,
	}

	switch {
	case snap.QueueSize > s.cfg.QueueCriticalMax:
		out[dom.ComponentSyncQueue] = dom.StatusCritical
	case snap.QueueSize > s.cfg.QueueMax || snap.ActiveCount > s.cfg.ActiveMax:
		out[dom.ComponentSyncQueue] = dom.StatusWarning
	}

	if snap.BatchQueueSize > s.cfg.BatchQueueMax ||
		(snap.BatchesProcessed == 0 && snap.SyncOperations > 100) {
		out[dom.ComponentBatch] = dom.StatusWarning
	}

	switch {
	case s.src.Webhook == nil:
		out[dom.ComponentWebhook] = dom.StatusCritical
	case snap.LastWebhookAt.IsZero() || now.Sub(snap.LastWebhookAt) > s.cfg.WebhookStale:
		out[dom.ComponentWebhook] = dom.StatusWarning
	}

	switch {
	case snap.Cooldowns > s.cfg.CooldownCritical || snap.FailedSyncs > snap.SuccessfulSyncs:
		out[dom.ComponentErrorRecovery] = dom.StatusCritical
	case snap.Cooldowns > s.cfg.CooldownMax:
		out[dom.ComponentErrorRecovery] = dom.StatusWarning
	}

	return out
}

// evaluateAlerts raises per-threshold alerts with per-type cooldowns,
// critical alerts fan out to the admin channel
func (s *Svc) evaluateAlerts(ctx context.Context, snap dom.HealthSnapshot) {
	type violation struct {
		typ string
		sev dom.Status
		msg string
	}
	var found []violation

	if snap.FailureRate > s.cfg.FailureRateMax {
		sev := dom.StatusWarning
		if snap.FailedSyncs > snap.SuccessfulSyncs {
			sev = dom.StatusCritical
		}
		found = append(found, violation{dom.AlertHighFailureRate, sev,
			fmt.Sprintf("failure rate %.2f exceeds %.2f", snap.FailureRate, s.cfg.FailureRateMax)})
	}
	if snap.AverageSyncTimeMs > s.cfg.AvgSyncMsMax {
		found = append(found, violation{dom.AlertSlowSync, dom.StatusWarning,
			fmt.Sprintf("average sync time %.0fms exceeds %.0fms", snap.AverageSyncTimeMs, s.cfg.AvgSyncMsMax)})
	}
	if snap.QueueSize > s.cfg.QueueMax {
		sev := dom.StatusWarning
		if snap.QueueSize > s.cfg.QueueCriticalMax {
			sev = dom.StatusCritical
		}
		found = append(found, violation{dom.AlertQueueBacklog, sev,
			fmt.Sprintf("sync queue holds %d operations", snap.QueueSize)})
	}
	if snap.Cooldowns > s.cfg.CooldownMax {
		sev := dom.StatusWarning
		if snap.Cooldowns > s.cfg.CooldownCritical {
			sev = dom.StatusCritical
		}
		found = append(found, violation{dom.AlertCooldownSpike, sev,
			fmt.Sprintf("%d operations are cooling down", snap.Cooldowns)})
	}

	for _, v := range found {
		s.mu.Lock()
		if last, ok := s.lastAlert[v.typ]; ok && snap.At.Sub(last) < s.cfg.AlertCooldown {
			s.mu.Unlock()
			continue
		}
		s.lastAlert[v.typ] = snap.At
		rec := dom.AlertRecord{Type: v.typ, Severity: v.sev, Message: v.msg, At: snap.At}
		s.alerts = append(s.alerts, rec)
		if len(s.alerts) > s.cfg.MaxHistory {
			s.alerts = s.alerts[len(s.alerts)-s.cfg.MaxHistory:]
		}
		s.mu.Unlock()

		s.log.Warn().
			Str("alert", v.typ).
			Str("severity", string(v.sev)).
			Msg(v.msg)

		if v.sev == dom.StatusCritical && s.chat != nil && s.cfg.AdminGuildID != "" {
			msg := fmt.Sprintf(":rotating_light: **%s**: %s", v.typ, v.msg)
			if err := s.chat.NotifyAdmins(ctx, s.cfg.AdminGuildID, msg); err != nil {
				s.log.Warn().Err(err).Str("alert", v.typ).Msg("admin notify failed")
			}
		}
	}
}

// recompute derives recommendations from the trailing window
func (s *Svc) recompute(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.history
	if len(window) > s.cfg.RecWindow {
		window = window[len(window)-s.cfg.RecWindow:]
	}
	s.recAt = now
	s.recs = nil
	if len(window) == 0 {
		return
	}

	var queueSum, syncSum, failSum float64
	for _, snap := range window {
		queueSum += float64(snap.QueueSize)
		syncSum += snap.AverageSyncTimeMs
		failSum += snap.FailureRate
	}
	n := float64(len(window))

	if queueSum/n > float64(s.cfg.QueueMax) {
		s.recs = append(s.recs, dom.Recommendation{
			Topic:   "batch_tuning",
			Message: "sync queue stays high, lower the batch interval or raise pickBatch",
			At:      now,
		})
	}
	if syncSum/n > s.cfg.AvgSyncMsMax {
		s.recs = append(s.recs, dom.Recommendation{
			Topic:   "connection_pooling",
			Message: "average sync time stays high, check platform latency and connection reuse",
			At:      now,
		})
	}
	if failSum/n > s.cfg.FailureRateMax {
		s.recs = append(s.recs, dom.Recommendation{
			Topic:   "retry_review",
			Message: "failure rate stays high, review retry policy and endpoint idempotency",
			At:      now,
		})
	}

	first, last := window[0], window[len(window)-1]
	opsDelta := last.SyncOperations - first.SyncOperations
	batchDelta := last.BatchesProcessed - first.BatchesProcessed
	if batchDelta > 0 && opsDelta/batchDelta < 5 {
		s.recs = append(s.recs, dom.Recommendation{
			Topic:   "batch_size",
			Message: "batches run chronically small, raise the batch size",
			At:      now,
		})
	}
}

// persist caches the snapshot for external dashboards, best effort
func (s *Svc) persist(ctx context.Context, snap dom.HealthSnapshot) {
	if s.deps.KV == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.deps.KV.Set(ctx, kvPerfKey, raw, kvPerfTTL); err != nil {
		s.log.Warn().Err(err).Msg("snapshot persist failed")
	}
}

// Latest returns the newest snapshot, ok=false before the first sample
func (s *Svc) Latest() (dom.HealthSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return dom.HealthSnapshot{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns up to n trailing snapshots, newest last
func (s *Svc) History(n int) []dom.HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]dom.HealthSnapshot, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Alerts returns the alert history, newest last
func (s *Svc) Alerts() []dom.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dom.AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Recommendations returns the cached list, recomputing when stale
func (s *Svc) Recommendations() []dom.Recommendation {
	s.mu.RLock()
	stale := s.clk.Now().Sub(s.recAt) > s.cfg.RecCacheTTL
	out := make([]dom.Recommendation, len(s.recs))
	copy(out, s.recs)
	s.mu.RUnlock()

	if stale {
		s.recompute(s.clk.Now())
		s.mu.RLock()
		out = make([]dom.Recommendation, len(s.recs))
		copy(out, s.recs)
		s.mu.RUnlock()
	}
	return out
}

// Trend reports movement of one metric over the trailing window
func (s *Svc) Trend(metric string) dom.Trend {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.history
	if len(window) > s.cfg.RecWindow {
		window = window[len(window)-s.cfg.RecWindow:]
	}
	if len(window) < 2 {
		return dom.TrendStable
	}

	value := func(snap dom.HealthSnapshot) float64 {
		switch metric {
		case "queueSize":
			return float64(snap.QueueSize)
		case "averageSyncTimeMs":
			return snap.AverageSyncTimeMs
		case "failureRate":
			return snap.FailureRate
		case "cooldowns":
			return float64(snap.Cooldowns)
		default:
			return 0
		}
	}
	return dom.TrendOf(value(window[0]), value(window[len(window)-1]))
}

// Health implements the ingress health rollup, computed fresh when no
// sample exists yet
func (s *Svc) Health(_ context.Context) (string, map[string]string) {
	snap, ok := s.Latest()
	if !ok {
		snap = s.snapshot(s.clk.Now())
	}

	services := make(map[string]string, len(snap.Components))
	for name, st := range snap.Components {
		services[name] = string(st)
	}
	return string(snap.Overall), services
}
