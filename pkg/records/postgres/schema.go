// Package postgres provides the PostgreSQL-backed implementation of the
// records interfaces: learner profiles, the attempt log, and the
// pgvector-backed sentence index.
//
// All three share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	_ = store.SaveLearner(ctx, learner)
//	_ = store.SaveAttempt(ctx, attempt)
//	_ = store.IndexSentence(ctx, "ada", sentence, embedding)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlLearners = `
CREATE TABLE IF NOT EXISTS learners (
    name           TEXT         PRIMARY KEY,
    level          INT          NOT NULL DEFAULT 1,
    theme          TEXT         NOT NULL DEFAULT '',
    level_history  INT[]        NOT NULL DEFAULT '{}',
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlAttempts = `
CREATE TABLE IF NOT EXISTS attempts (
    id               BIGSERIAL    PRIMARY KEY,
    user_name        TEXT         NOT NULL,
    original_text    TEXT         NOT NULL,
    transcribed_text TEXT         NOT NULL,
    level            INT          NOT NULL,
    theme            TEXT         NOT NULL DEFAULT '',
    timestamp        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_user_name
    ON attempts (user_name);

CREATE INDEX IF NOT EXISTS idx_attempts_user_timestamp
    ON attempts (user_name, timestamp DESC);
`

// ddlSentences returns the sentence index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlSentences(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sentences (
    id          BIGSERIAL    PRIMARY KEY,
    user_name   TEXT         NOT NULL,
    sentence    TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sentences_user_name
    ON sentences (user_name);

CREATE INDEX IF NOT EXISTS idx_sentences_embedding
    ON sentences USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlLearners,
		ddlAttempts,
		ddlSentences(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
