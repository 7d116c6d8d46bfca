// Package repo provides the policy layer persistence surface
package repo

import (
	"context"
	"encoding/json"

	"nafbridge/internal/modkit/repokit"
	"nafbridge/internal/platform/store"
	"nafbridge/internal/services/policy/domain"
)

// Repo is the policy persistence surface used by the config resolver
type Repo interface {
	// Defaults loads the default config per command (guild_id = '')
	Defaults(ctx context.Context) (map[string]domain.CommandConfig, error)

	// Overrides loads per-guild overrides keyed by guildID|command
	Overrides(ctx context.Context) (map[string]domain.CommandOverride, error)

	// UpsertOverride stores one guild override
	UpsertOverride(ctx context.Context, guildID, command string, o domain.CommandOverride) error
}

type (
	// PG is a Postgres implementation of the policy repo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a binder for the Postgres implementation
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind attaches a Queryer to the Postgres implementation
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

// OverrideKey is the map key for a guild's command override
func OverrideKey(guildID, command string) string { return guildID + "|" + command }

func (r *queries) Defaults(ctx context.Context) (map[string]domain.CommandConfig, error) {
	const sql = `
		SELECT command, config
		FROM command_configs
		WHERE guild_id = ''
	`
	type row struct {
		command string
		cfg     domain.CommandConfig
	}
	rows, err := store.Many(ctx, r.q, func(sr store.Row) (row, error) {
		var out row
		var raw []byte
		if err := sr.Scan(&out.command, &raw); err != nil {
			return out, err
		}
		err := json.Unmarshal(raw, &out.cfg)
		return out, err
	}, sql)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.CommandConfig, len(rows))
	for _, rw := range rows {
		out[rw.command] = rw.cfg
	}
	return out, nil
}

func (r *queries) Overrides(ctx context.Context) (map[string]domain.CommandOverride, error) {
	const sql = `
		SELECT guild_id, command, config
		FROM command_configs
		WHERE guild_id <> ''
	`
	type row struct {
		key string
		o   domain.CommandOverride
	}
	rows, err := store.Many(ctx, r.q, func(sr store.Row) (row, error) {
		var out row
		var guildID, command string
		var raw []byte
		if err := sr.Scan(&guildID, &command, &raw); err != nil {
			return out, err
		}
		out.key = OverrideKey(guildID, command)
		err := json.Unmarshal(raw, &out.o)
		return out, err
	}, sql)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.CommandOverride, len(rows))
	for _, rw := range rows {
		out[rw.key] = rw.o
	}
	return out, nil
}

func (r *queries) UpsertOverride(ctx context.Context, guildID, command string, o domain.CommandOverride) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	const sql = `
		INSERT INTO command_configs (guild_id, command, config, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (guild_id, command)
		DO UPDATE SET config = EXCLUDED.config, updated_at = now()
	`
	_, err = r.q.Exec(ctx, sql, guildID, command, raw)
	return err
}
