// Package repo provides the sync engine persistence surface
package repo

import (
	"context"

	"nafbridge/internal/modkit/repokit"
	"nafbridge/internal/platform/store"
	"nafbridge/internal/services/sync/domain"
)

// Repo is the sync persistence surface used by the service layer
type Repo interface {
	// MessagesFor returns every chat message mirroring the entity
	MessagesFor(ctx context.Context, kind domain.Kind, key string) ([]domain.MessageRef, error)

	// IndexedEntities lists distinct (kind, key) pairs in the message index,
	// used by the reconcile sweep
	IndexedEntities(ctx context.Context) ([]IndexedEntity, error)

	// RecordMessage upserts one entity to message mapping
	RecordMessage(ctx context.Context, kind domain.Kind, key string, ref domain.MessageRef) error

	// DropMessage removes a mapping once the chat message is gone
	DropMessage(ctx context.Context, kind domain.Kind, key string, ref domain.MessageRef) error
}

// IndexedEntity is one distinct entity present in the message index
type IndexedEntity struct {
	Kind domain.Kind
	Key  string
}

type (
	// PG is a Postgres implementation of the sync repo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a binder for the Postgres implementation
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind attaches a Queryer to the Postgres implementation
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

func (r *queries) MessagesFor(ctx context.Context, kind domain.Kind, key string) ([]domain.MessageRef, error) {
	const sql = `
		SELECT channel_id, message_id
		FROM entity_messages
		WHERE kind = $1 AND entity_key = $2
		ORDER BY channel_id, message_id
	`
	return store.Many(ctx, r.q, func(row store.Row) (domain.MessageRef, error) {
		var ref domain.MessageRef
		err := row.Scan(&ref.ChannelID, &ref.MessageID)
		return ref, err
	}, sql, string(kind), key)
}

func (r *queries) IndexedEntities(ctx context.Context) ([]IndexedEntity, error) {
	const sql = `
		SELECT DISTINCT kind, entity_key
		FROM entity_messages
		ORDER BY kind, entity_key
	`
	return store.Many(ctx, r.q, func(row store.Row) (IndexedEntity, error) {
		var e IndexedEntity
		var kind string
		if err := row.Scan(&kind, &e.Key); err != nil {
			return e, err
		}
		e.Kind = domain.Kind(kind)
		return e, nil
	}, sql)
}

func (r *queries) RecordMessage(ctx context.Context, kind domain.Kind, key string, ref domain.MessageRef) error {
	const sql = `
		INSERT INTO entity_messages (kind, entity_key, channel_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, entity_key, channel_id, message_id) DO NOTHING
	`
	_, err := r.q.Exec(ctx, sql, string(kind), key, ref.ChannelID, ref.MessageID)
	return err
}

func (r *queries) DropMessage(ctx context.Context, kind domain.Kind, key string, ref domain.MessageRef) error {
	const sql = `
		DELETE FROM entity_messages
		WHERE kind = $1 AND entity_key = $2 AND channel_id = $3 AND message_id = $4
	`
	_, err := r.q.Exec(ctx, sql, string(kind), key, ref.ChannelID, ref.MessageID)
	return err
}
