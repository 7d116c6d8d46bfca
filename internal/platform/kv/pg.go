package kv

import (
	"context"
	"errors"
	"time"

	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/store"

	"github.com/jackc/pgx/v5"
)

// PG is a postgres backed KV for deployments where peers must share
// sync state. Tables:
//
//	kv_entries(key TEXT PRIMARY KEY, value BYTEA, expires_at TIMESTAMPTZ)
//	kv_streams(key TEXT, seq BIGSERIAL, value BYTEA, PRIMARY KEY (key, seq))
type PG struct {
	q   store.RowQuerier
	clk clock.Clock
}

var _ KV = (*PG)(nil)

// NewPG wraps a querier, clk may be nil for the system clock
func NewPG(q store.RowQuerier, clk clock.Clock) *PG {
	if clk == nil {
		clk = clock.System{}
	}
	return &PG{q: q, clk: clk}
}

func (p *PG) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = p.clk.Now().Add(ttl)
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expires)
	return err
}

func (p *PG) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.q.QueryRow(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, p.clk.Now()).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (p *PG) Del(ctx context.Context, key string) error {
	_, err := p.q.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

func (p *PG) Keys(ctx context.Context, prefix string) ([]string, error) {
	return store.Many(ctx, p.q, func(r store.Row) (string, error) {
		var k string
		err := r.Scan(&k)
		return k, err
	}, `
		SELECT key FROM kv_entries
		WHERE key LIKE $1 || '%' AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key
	`, prefix, p.clk.Now())
}

func (p *PG) Push(ctx context.Context, key string, value []byte, max int) error {
	if _, err := p.q.Exec(ctx,
		`INSERT INTO kv_streams (key, value) VALUES ($1, $2)`, key, value,
	); err != nil {
		return err
	}
	if max <= 0 {
		return nil
	}
	_, err := p.q.Exec(ctx, `
		DELETE FROM kv_streams
		WHERE key = $1 AND seq NOT IN (
			SELECT seq FROM kv_streams WHERE key = $1 ORDER BY seq DESC LIMIT $2
		)
	`, key, max)
	return err
}

func (p *PG) Range(ctx context.Context, key string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 1000
	}
	return store.Many(ctx, p.q, func(r store.Row) ([]byte, error) {
		var v []byte
		err := r.Scan(&v)
		return v, err
	}, `
		SELECT value FROM kv_streams
		WHERE key = $1 ORDER BY seq DESC LIMIT $2
	`, key, limit)
}

func (p *PG) Sweep(ctx context.Context) error {
	_, err := p.q.Exec(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		p.clk.Now(),
	)
	return err
}
