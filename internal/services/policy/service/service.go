// Package service implements interaction admission and anomaly detection
package service

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"sync/atomic"
	"time"

	"nafbridge/internal/core/normalize"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/repokit"
	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/logger"
	dom "nafbridge/internal/services/policy/domain"
	prepo "nafbridge/internal/services/policy/repo"
)

// adminCapability satisfies admin-only commands on its own
const adminCapability = "administrator"

// anomaly audit sink layout
const anomalyTable = "bridge_policy_anomalies"

var anomalyCols = []string{"ts", "anomaly_type", "guild_id", "user_id", "severity", "details"}

// Config controls the policy layer
type Config struct {
	// Default applies to commands without a configured row
	Default dom.CommandConfig

	// MinAccountAge rejects accounts younger than this
	MinAccountAge time.Duration

	// QuotaWindow is the sliding window behind maxUsesPerHour
	QuotaWindow time.Duration

	Anomaly AnomalyConfig
}

func (c *Config) defaults() {
	if c.MinAccountAge <= 0 {
		c.MinAccountAge = 7 * 24 * time.Hour
	}
	if c.QuotaWindow <= 0 {
		c.QuotaWindow = time.Hour
	}
	if c.Default.MaxUsesPerHour == 0 {
		c.Default.MaxUsesPerHour = 30
	}
}

// Service is the policy layer surface
type Service interface {
	dom.EvaluatePort
	dom.JoinPort
	dom.StatsPort
}

// Svc admits or rejects interactions and watches for abuse
type Svc struct {
	cfg      Config
	deps     modkit.Deps
	binder   repokit.Binder[prepo.Repo]
	repo     prepo.Repo
	resolver *resolver
	detector *detector
	clk      clock.Clock
	log      logger.Logger

	// buckets hold per userID|command use timestamps for the quota check
	bucketMu stdsync.Mutex
	buckets  map[string][]time.Time

	evaluations atomic.Uint64
	admissions  atomic.Uint64
	denials     atomic.Uint64
	anomalies   atomic.Uint64
}

// New constructs the policy service
func New(deps modkit.Deps, cfg Config) *Svc {
	cfg.defaults()

	s := &Svc{
		cfg:     cfg,
		deps:    deps,
		clk:     deps.Clock,
		log:     *logger.Named("policy"),
		buckets: make(map[string][]time.Time),
	}
	if s.clk == nil {
		s.clk = clock.System{}
	}
	s.resolver = newResolver(cfg.Default)
	s.detector = newDetector(cfg.Anomaly, s.clk, s.onAnomaly)
	if deps.PG != nil {
		s.binder = prepo.NewPG()
		s.repo = s.binder.Bind(deps.PG)
	}
	return s
}

// Evaluate runs the ordered checks, first denial wins. An internal
// failure denies with high severity, never admits
func (s *Svc) Evaluate(ctx context.Context, in dom.Interaction, commandName string) (dec dom.Decision) {
	s.evaluations.Add(1)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Any("panic", r).Str("command", commandName).Msg("evaluation panicked")
			dec = dom.Denied("permission check failed", dom.SeverityHigh)
		}
		if dec.Admit {
			s.admissions.Add(1)
		} else {
			s.denials.Add(1)
		}
		if in.Caller != nil {
			s.detector.Observe(in.GuildID, in.Caller.UserID, commandName, in.Caller.CreatedAt)
		}
	}()

	if in.GuildID == "" {
		return dom.Denied("guild context required", dom.SeverityLow)
	}
	if in.Caller == nil {
		return dom.Denied("member context required", dom.SeverityLow)
	}
	caller := in.Caller

	if caller.IsBot {
		s.onAnomaly(dom.AnomalyEvent{
			Type:     dom.AnomalySuspiciousPattern,
			GuildID:  in.GuildID,
			UserID:   caller.UserID,
			Severity: dom.SeverityMedium,
			At:       s.clk.Now(),
			Details:  map[string]any{"cause": "bot_account", "command": commandName},
		})
		return dom.Denied("bot accounts cannot use commands", dom.SeverityMedium)
	}

	now := s.clk.Now()
	if caller.CreatedAt.IsZero() || now.Sub(caller.CreatedAt) < s.cfg.MinAccountAge {
		return dom.Denied("account too new", dom.SeverityMedium)
	}

	cfg := s.resolver.resolve(in.GuildID, commandName)

	if cfg.AdminOnly && !s.isAdmin(caller, cfg) {
		return dom.Denied("admin only command", dom.SeverityMedium)
	}

	for _, capability := range cfg.RequiredCapabilities {
		if !containsFold(caller.Capabilities, capability) {
			return dom.Denied("missing capability: "+capability, dom.SeverityMedium)
		}
	}

	for _, role := range cfg.RequiredRoles {
		if !s.hasRole(caller, role) {
			return dom.Denied("missing role: "+role, dom.SeverityMedium)
		}
	}

	if dec, ok := s.checkQuota(in.GuildID, caller.UserID, commandName, cfg, now); !ok {
		return dec
	}

	return dom.Admitted()
}

// RecordJoin feeds member-join events into mass-join detection
func (s *Svc) RecordJoin(_ context.Context, guildID, userID string, accountCreatedAt time.Time) {
	s.detector.RecordJoin(guildID, userID, accountCreatedAt)
}

// Stats snapshots the policy counters
func (s *Svc) Stats() dom.Stats {
	return dom.Stats{
		Evaluations: s.evaluations.Load(),
		Admissions:  s.admissions.Load(),
		Denials:     s.denials.Load(),
		Anomalies:   s.anomalies.Load(),
	}
}

func (s *Svc) isAdmin(caller *dom.Caller, cfg dom.CommandConfig) bool {
	if caller.IsGuildOwner {
		return true
	}
	if containsFold(caller.Capabilities, adminCapability) {
		return true
	}
	for _, role := range cfg.AdminRoles {
		if s.hasRole(caller, role) {
			return true
		}
	}
	return false
}

// hasRole matches by id first, then by case-insensitive name
func (s *Svc) hasRole(caller *dom.Caller, role string) bool {
	for _, id := range caller.RoleIDs {
		if id == role {
			return true
		}
	}
	for _, name := range caller.RoleNames {
		if normalize.Equal(name, role) {
			return true
		}
	}
	return false
}

// checkQuota enforces the sliding window and records the use on admit
func (s *Svc) checkQuota(guildID, userID, command string, cfg dom.CommandConfig, now time.Time) (dom.Decision, bool) {
	if cfg.MaxUsesPerHour <= 0 && cfg.CooldownSec <= 0 {
		return dom.Decision{}, true
	}

	key := userID + "|" + command
	cutoff := now.Add(-s.cfg.QuotaWindow)

	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	hits := s.buckets[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if cfg.CooldownSec > 0 && len(hits) > 0 {
		if wait := time.Duration(cfg.CooldownSec)*time.Second - now.Sub(hits[len(hits)-1]); wait > 0 {
			s.buckets[key] = hits
			return dom.Denied("command cooling down", dom.SeverityLow), false
		}
	}

	if cfg.MaxUsesPerHour > 0 && len(hits) >= cfg.MaxUsesPerHour {
		s.buckets[key] = hits
		s.onAnomaly(dom.AnomalyEvent{
			Type:     dom.AnomalyCommandAbuse,
			GuildID:  guildID,
			UserID:   userID,
			Severity: dom.SeverityMedium,
			At:       now,
			Details:  map[string]any{"cause": "quota_exceeded", "command": command, "uses": len(hits)},
		})
		return dom.Denied("usage quota exceeded", dom.SeverityMedium), false
	}

	s.buckets[key] = append(hits, now)
	return dom.Decision{}, true
}

// onAnomaly routes a signal to the audit sink and the counters
func (s *Svc) onAnomaly(ev dom.AnomalyEvent) {
	s.anomalies.Add(1)
	s.log.Warn().
		Str("anomaly", ev.Type).
		Str("guild_id", ev.GuildID).
		Str("user_id", ev.UserID).
		Str("severity", string(ev.Severity)).
		Msg("anomaly detected")

	if s.deps.CH == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	details, err := json.Marshal(ev.Details)
	if err != nil {
		details = []byte("{}")
	}
	row := []any{ev.At, ev.Type, ev.GuildID, ev.UserID, string(ev.Severity), string(details)}
	if err := s.deps.CH.Insert(ctx, anomalyTable, anomalyCols, [][]any{row}); err != nil {
		s.log.Warn().Err(err).Msg("anomaly ch append failed")
	}
}

// containsFold reports whether list holds s under case folding
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if normalize.Equal(v, s) {
			return true
		}
	}
	return false
}
