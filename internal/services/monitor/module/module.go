// Package module wires the monitor service
package module

import (
	"context"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/httpkit"
	"nafbridge/internal/services/monitor/service"
)

// Options controls the monitor
type Options struct {
	Interval      time.Duration
	MaxHistory    int
	AlertCooldown time.Duration
	AdminGuildID  string
}

// FromConfig reads with MONITOR_ prefix
func FromConfig(deps modkit.Deps) Options {
	c := deps.Cfg.Prefix("MONITOR_")
	return Options{
		Interval:      c.MayDuration("INTERVAL", 30*time.Second),
		MaxHistory:    c.MayInt("MAX_HISTORY", 1000),
		AlertCooldown: c.MayDuration("ALERT_COOLDOWN", 5*time.Minute),
		AdminGuildID:  c.MayString("ADMIN_GUILD_ID", ""),
	}
}

// Module is the monitor module
type Module struct {
	svc *service.Svc
}

// New constructs the monitor module
func New(deps modkit.Deps, src service.Sources, gw chat.Gateway) *Module {
	opts := FromConfig(deps)

	svc := service.New(deps, service.Config{
		Interval:      opts.Interval,
		MaxHistory:    opts.MaxHistory,
		AlertCooldown: opts.AlertCooldown,
		AdminGuildID:  opts.AdminGuildID,
	}, src, gw)

	return &Module{svc: svc}
}

// Service exposes the concrete service, it doubles as the ingress
// health source
func (m *Module) Service() *service.Svc { return m.svc }

// Run samples until ctx is done
func (m *Module) Run(ctx context.Context) error { return m.svc.Run(ctx) }

// Ports returns nothing, consumers take the service directly
func (m *Module) Ports() any { return nil }

// Name returns the module name
func (m *Module) Name() string { return "monitor" }

// MountRoutes returns no HTTP routes, health and metrics are served by
// the webhook module
func (m *Module) MountRoutes(_ httpkit.Router) {}
