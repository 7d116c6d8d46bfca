// Package service implements the sync engine worker and enqueue service
package service

import (
	"context"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/adapters/naffles"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/repokit"
	"nafbridge/internal/platform/clock"
	perr "nafbridge/internal/platform/errors"
	"nafbridge/internal/platform/logger"

	dom "nafbridge/internal/services/sync/domain"
	srepo "nafbridge/internal/services/sync/repo"
)

// Service implements worker, enqueue, and stats ports
type Service interface {
	dom.WorkerPort
	dom.EnqueuePort
	dom.StatsPort
}

// Platform is the outbound platform API surface the engine drives
type Platform interface {
	SyncTaskStatus(ctx context.Context, taskID string, body naffles.TaskStatusSync) error
	SyncAllowlist(ctx context.Context, allowlistID string, body naffles.AllowlistSync) error
	SyncUserProgress(ctx context.Context, userID string, body naffles.UserProgressSync) error
	Task(ctx context.Context, taskID string) (naffles.TaskSnapshot, error)
	Allowlist(ctx context.Context, allowlistID string) (naffles.AllowlistSnapshot, error)
}

// Config controls the engine cadences and retry policy
type Config struct {
	ProcessInterval time.Duration
	BatchInterval   time.Duration
	CleanupInterval time.Duration

	PickBatch int
	BatchSize int
	MaxAge    time.Duration

	MaxRetries int
	RetryDelay time.Duration
	Cooldown   time.Duration

	NotifyOnStatusChange bool
}

func (c *Config) defaults() {
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = 5 * time.Second
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 10 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.PickBatch <= 0 {
		c.PickBatch = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
}

// result reports one finished execution back to the run loop
type result struct {
	op      dom.Operation
	err     error
	elapsed time.Duration
}

// Svc implements the sync engine
// all maps below are owned by the Run loop and never touched elsewhere
type Svc struct {
	cfg      Config
	deps     modkit.Deps
	platform Platform
	chat     chat.Gateway
	binder   repokit.Binder[srepo.Repo]
	repo     srepo.Repo
	clk      clock.Clock
	log      logger.Logger

	enq     chan dom.Operation
	batchCh chan dom.BatchEnvelope
	results chan result

	queue      map[string]dom.Operation
	activeIDs  map[string]struct{}
	activeKeys map[string]struct{}
	cooldowns  map[string]time.Time
	batchQueue []dom.BatchEnvelope

	metrics metrics

	// exec is a seam so tests can stub out the I/O path
	exec func(ctx context.Context, op dom.Operation) error
}

// New constructs the engine
func New(deps modkit.Deps, cfg Config, platform Platform, gw chat.Gateway) *Svc {
	cfg.defaults()

	s := &Svc{
		cfg:      cfg,
		deps:     deps,
		platform: platform,
		chat:     gw,
		clk:      deps.Clock,
		log:      *logger.Named("sync-engine"),

		enq:     make(chan dom.Operation, 1024),
		batchCh: make(chan dom.BatchEnvelope, 256),
		results: make(chan result, 64),

		queue:      make(map[string]dom.Operation),
		activeIDs:  make(map[string]struct{}),
		activeKeys: make(map[string]struct{}),
		cooldowns:  make(map[string]time.Time),
	}
	if s.clk == nil {
		s.clk = clock.System{}
	}
	if deps.PG != nil {
		s.binder = srepo.NewPG()
		s.repo = s.binder.Bind(deps.PG)
	}
	s.exec = s.executeOp
	return s
}

// Enqueue queues one operation without ever blocking the caller
func (s *Svc) Enqueue(_ context.Context, op dom.Operation) (string, error) {
	if op.SyncID == "" {
		return "", perr.Validationf("operation missing syncId")
	}
	s.metrics.webhookEvents.Add(1)
	select {
	case s.enq <- op:
		return op.SyncID, nil
	default:
		return "", perr.Unavailablef("sync queue saturated")
	}
}

// EnqueueBatch queues a webhook batch for merge-and-collapse processing
func (s *Svc) EnqueueBatch(_ context.Context, env dom.BatchEnvelope) error {
	s.metrics.webhookEvents.Add(uint64(len(env.Ops)))
	select {
	case s.batchCh <- env:
		return nil
	default:
		return perr.Unavailablef("batch queue saturated")
	}
}
