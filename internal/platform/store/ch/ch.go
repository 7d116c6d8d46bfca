// Package ch provides a clickhouse client over the database/sql interface
package ch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config configures clickhouse client
type Config struct {
	URL string

	// Role tags the connection in client info, e.g. "worker", "reconcile"
	Role string
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// CH is a clickhouse client for append-oriented sinks
type CH struct {
	db *sql.DB
}

// Open parses the DSN and opens a pooled clickhouse connection
func Open(_ context.Context, cfg Config) (*CH, error) {
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ch: parse dsn: %w", err)
	}
	opts.ClientInfo = BuildClientInfo(cfg.Role, "")

	db := clickhouse.OpenDB(opts)
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	return &CH{db: db}, nil
}

// Ping verifies connectivity
func (c *CH) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return errors.New("ch: nil client")
	}
	return c.db.PingContext(ctx)
}

// Insert appends rows into table using the native batch protocol.
// cols names the target columns, every row must have len(cols) values
func (c *CH) Insert(ctx context.Context, table string, cols []string, rows [][]any) error {
	if c == nil || c.db == nil {
		return errors.New("ch: nil client")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ch: begin batch: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(cols, ", ")),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("ch: prepare insert: %w", err)
	}

	for _, r := range rows {
		if len(r) != len(cols) {
			_ = tx.Rollback()
			return fmt.Errorf("ch: row has %d values, want %d", len(r), len(cols))
		}
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ch: append row: %w", err)
		}
	}

	return tx.Commit()
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("ch: nil client")
	}
	rs, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{r: rs}, nil
}

// Close closes the pool
func (c *CH) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// sqlRows adapts *sql.Rows to ch.Rows
type sqlRows struct{ r *sql.Rows }

func (s *sqlRows) Next() bool             { return s.r.Next() }
func (s *sqlRows) Scan(dest ...any) error { return s.r.Scan(dest...) }
func (s *sqlRows) Err() error             { return s.r.Err() }
func (s *sqlRows) Close() error           { return s.r.Close() }
func (s *sqlRows) Columns() []string {
	cols, err := s.r.Columns()
	if err != nil {
		return nil
	}
	return cols
}
