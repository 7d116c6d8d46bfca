// Package module wires the policy layer service
package module

import (
	"context"
	"time"

	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/httpkit"
	"nafbridge/internal/platform/logger"
	dom "nafbridge/internal/services/policy/domain"
	"nafbridge/internal/services/policy/service"
)

// Options controls the policy layer
type Options struct {
	MinAccountAge  time.Duration
	QuotaWindow    time.Duration
	MaxUsesPerHour int
	ReloadInterval time.Duration
}

// FromConfig reads with POLICY_ prefix
func FromConfig(deps modkit.Deps) Options {
	c := deps.Cfg.Prefix("POLICY_")
	return Options{
		MinAccountAge:  c.MayDuration("MIN_ACCOUNT_AGE", 7*24*time.Hour),
		QuotaWindow:    c.MayDuration("QUOTA_WINDOW", time.Hour),
		MaxUsesPerHour: c.MayInt("MAX_USES_PER_HOUR", 30),
		ReloadInterval: c.MayDuration("RELOAD_INTERVAL", time.Minute),
	}
}

// Ports holds the ports exposed by the policy module
type Ports struct {
	Evaluator dom.EvaluatePort
	Joins     dom.JoinPort
	Stats     dom.StatsPort
}

// Module is the policy layer module
type Module struct {
	svc   *service.Svc
	opts  Options
	ports Ports
	log   logger.Logger
}

// New constructs the policy module
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps)

	svc := service.New(deps, service.Config{
		Default:       dom.CommandConfig{MaxUsesPerHour: opts.MaxUsesPerHour},
		MinAccountAge: opts.MinAccountAge,
		QuotaWindow:   opts.QuotaWindow,
	})

	m := &Module{svc: svc, opts: opts, log: *logger.Named("policy-module")}
	m.ports = Ports{Evaluator: svc, Joins: svc, Stats: svc}
	return m
}

// Service exposes the concrete service
func (m *Module) Service() *service.Svc { return m.svc }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return "policy" }

// MountRoutes returns no HTTP routes, admission is in-process
func (m *Module) MountRoutes(_ httpkit.Router) {}

// Run reloads command configs on a cadence until ctx is done
func (m *Module) Run(ctx context.Context) error {
	if err := m.svc.Reload(ctx); err != nil {
		return err
	}

	t := time.NewTicker(m.opts.ReloadInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := m.svc.Reload(ctx); err != nil {
				m.log.Warn().Err(err).Msg("command config reload failed")
			}
		}
	}
}
