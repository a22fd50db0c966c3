package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/echolalia-dev/echolalia/pkg/records"
)

// IndexSentence implements [records.SentenceIndex].
func (s *Store) IndexSentence(ctx context.Context, user, sentence string, embedding []float32) error {
	const q = `
		INSERT INTO sentences (user_name, sentence, embedding)
		VALUES ($1, $2, $3)`

	vec := pgvector.NewVector(embedding)
	if _, err := s.pool.Exec(ctx, q, user, sentence, vec); err != nil {
		return fmt.Errorf("sentence index: index sentence: %w", err)
	}
	return nil
}

// Nearest implements [records.SentenceIndex]. It finds the topK sentences of
// the given learner whose embeddings are closest (cosine distance) to the
// query embedding, most similar first.
func (s *Store) Nearest(ctx context.Context, user string, embedding []float32, topK int) ([]records.SentenceNeighbor, error) {
	const q = `
		SELECT sentence, embedding <=> $1 AS distance
		FROM   sentences
		WHERE  user_name = $2
		ORDER  BY distance
		LIMIT  $3`

	queryVec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, q, queryVec, user, topK)
	if err != nil {
		return nil, fmt.Errorf("sentence index: nearest: %w", err)
	}

	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.SentenceNeighbor, error) {
		var n records.SentenceNeighbor
		err := row.Scan(&n.Sentence, &n.Distance)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("sentence index: scan rows: %w", err)
	}
	if neighbors == nil {
		neighbors = []records.SentenceNeighbor{}
	}
	return neighbors, nil
}
