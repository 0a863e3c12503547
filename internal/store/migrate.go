package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migration is one versioned, idempotent schema step. Steps are additive:
// upgrading the schema never destroys existing data.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "identities and embeddings",
		sql: `
			CREATE TABLE IF NOT EXISTS identities (
				id UUID PRIMARY KEY,
				name TEXT NOT NULL UNIQUE CHECK (name <> ''),
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS face_embeddings (
				id UUID PRIMARY KEY,
				identity_id UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
				embedding BYTEA NOT NULL,
				embedding_size INT NOT NULL CHECK (embedding_size > 0),
				quality REAL NOT NULL DEFAULT 0,
				is_primary BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS face_embeddings_identity_id_idx
				ON face_embeddings (identity_id);`,
	},
	{
		version: 2,
		name:    "audit log",
		sql: `
			CREATE TABLE IF NOT EXISTS audit_log (
				id BIGSERIAL PRIMARY KEY,
				operation TEXT NOT NULL,
				table_name TEXT NOT NULL,
				record_id TEXT NOT NULL,
				old_data JSONB,
				new_data JSONB,
				actor TEXT NOT NULL DEFAULT '',
				origin TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);`,
	},
	{
		version: 3,
		name:    "recognition counters and name hash",
		sql: `
			ALTER TABLE identities ADD COLUMN IF NOT EXISTS recognition_count BIGINT NOT NULL DEFAULT 0;
			ALTER TABLE identities ADD COLUMN IF NOT EXISTS last_recognized_at TIMESTAMPTZ;
			ALTER TABLE identities ADD COLUMN IF NOT EXISTS name_hash TEXT NOT NULL DEFAULT '';
			CREATE INDEX IF NOT EXISTS identities_name_hash_idx ON identities (name_hash);`,
	},
	{
		version: 4,
		name:    "pgvector search column",
		sql: `
			CREATE EXTENSION IF NOT EXISTS vector;
			ALTER TABLE face_embeddings ADD COLUMN IF NOT EXISTS embedding_vec VECTOR(512);`,
	},
}

// Migrate applies all pending migrations, each inside its own transaction,
// recording applied versions in schema_migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if exists {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		slog.Info("applied schema migration", "version", m.version, "name", m.name)
	}

	return nil
}
