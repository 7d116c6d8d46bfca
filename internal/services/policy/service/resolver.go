package service

import (
	"context"
	stdsync "sync"

	dom "nafbridge/internal/services/policy/domain"
	prepo "nafbridge/internal/services/policy/repo"
)

// resolver holds the live permission config, swappable at runtime
// without restart. Reads take the read lock on every evaluation
type resolver struct {
	mu stdsync.RWMutex

	// base applies when a command has no default row
	base dom.CommandConfig

	defaults  map[string]dom.CommandConfig
	overrides map[string]dom.CommandOverride
}

func newResolver(base dom.CommandConfig) *resolver {
	return &resolver{
		base:      base,
		defaults:  make(map[string]dom.CommandConfig),
		overrides: make(map[string]dom.CommandOverride),
	}
}

// resolve returns defaults overridden by the guild's tweaks
func (r *resolver) resolve(guildID, command string) dom.CommandConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.defaults[command]
	if !ok {
		cfg = r.base
	}
	if o, ok := r.overrides[prepo.OverrideKey(guildID, command)]; ok {
		cfg = cfg.Apply(o)
	}
	return cfg
}

// swap atomically replaces the whole config set
func (r *resolver) swap(defaults map[string]dom.CommandConfig, overrides map[string]dom.CommandOverride) {
	if defaults == nil {
		defaults = make(map[string]dom.CommandConfig)
	}
	if overrides == nil {
		overrides = make(map[string]dom.CommandOverride)
	}
	r.mu.Lock()
	r.defaults = defaults
	r.overrides = overrides
	r.mu.Unlock()
}

// setOverride patches one override in place, used by admin tooling
func (r *resolver) setOverride(guildID, command string, o dom.CommandOverride) {
	r.mu.Lock()
	r.overrides[prepo.OverrideKey(guildID, command)] = o
	r.mu.Unlock()
}

// Reload repopulates the resolver from the command_configs table
func (s *Svc) Reload(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	defaults, err := s.repo.Defaults(ctx)
	if err != nil {
		return err
	}
	overrides, err := s.repo.Overrides(ctx)
	if err != nil {
		return err
	}
	s.resolver.swap(defaults, overrides)
	s.log.Debug().
		Int("defaults", len(defaults)).
		Int("overrides", len(overrides)).
		Msg("command configs reloaded")
	return nil
}
