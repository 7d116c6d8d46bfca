// Package module wires the sync engine service and exposes its ports
package module

import (
	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/httpkit"
	"nafbridge/internal/services/sync/service"
)

// Module defines the sync engine module
type Module struct {
	deps  modkit.Deps
	svc   *service.Svc
	ports Ports
}

// New constructs the sync module with its ports
func New(deps modkit.Deps, platform service.Platform, gw chat.Gateway, overrides Options) *Module {
	opts := FromConfig(deps.Cfg)

	if overrides.ProcessInterval != 0 {
		opts.ProcessInterval = overrides.ProcessInterval
	}
	if overrides.BatchInterval != 0 {
		opts.BatchInterval = overrides.BatchInterval
	}
	if overrides.CleanupInterval != 0 {
		opts.CleanupInterval = overrides.CleanupInterval
	}
	if overrides.PickBatch != 0 {
		opts.PickBatch = overrides.PickBatch
	}
	if overrides.BatchSize != 0 {
		opts.BatchSize = overrides.BatchSize
	}
	if overrides.MaxAge != 0 {
		opts.MaxAge = overrides.MaxAge
	}
	if overrides.MaxRetries != 0 {
		opts.MaxRetries = overrides.MaxRetries
	}
	if overrides.RetryDelay != 0 {
		opts.RetryDelay = overrides.RetryDelay
	}
	if overrides.Cooldown != 0 {
		opts.Cooldown = overrides.Cooldown
	}

	svc := service.New(deps, service.Config{
		ProcessInterval:      opts.ProcessInterval,
		BatchInterval:        opts.BatchInterval,
		CleanupInterval:      opts.CleanupInterval,
		PickBatch:            opts.PickBatch,
		BatchSize:            opts.BatchSize,
		MaxAge:               opts.MaxAge,
		MaxRetries:           opts.MaxRetries,
		RetryDelay:           opts.RetryDelay,
		Cooldown:             opts.Cooldown,
		NotifyOnStatusChange: opts.NotifyOnChange,
	}, platform, gw)

	m := &Module{deps: deps, svc: svc}
	m.ports = Ports{
		Worker:   svc,
		Enqueuer: svc,
		Stats:    svc,
	}
	return m
}

// Service exposes the concrete service for the reconcile entrypoint
func (m *Module) Service() *service.Svc { return m.svc }

// Ports returns the module ports (Worker, Enqueuer, Stats)
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "sync" }

// MountRoutes returns no HTTP routes, ingress lives in the webhook module
func (m *Module) MountRoutes(_ httpkit.Router) {}
