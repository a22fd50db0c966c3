package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/echolalia-dev/echolalia/pkg/records"
)

// Learner implements [records.Store]. It returns (nil, nil) when name is
// unknown.
func (s *Store) Learner(ctx context.Context, name string) (*records.Learner, error) {
	const q = `
		SELECT name, level, theme, level_history, updated_at
		FROM   learners
		WHERE  name = $1`

	var l records.Learner
	err := s.pool.QueryRow(ctx, q, name).Scan(
		&l.Name,
		&l.Level,
		&l.Theme,
		&l.LevelHistory,
		&l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("records: load learner: %w", err)
	}
	return &l, nil
}

// SaveLearner implements [records.Store]. The learner row is fully replaced
// on conflict; updated_at is refreshed by the store.
func (s *Store) SaveLearner(ctx context.Context, l records.Learner) error {
	const q = `
		INSERT INTO learners (name, level, theme, level_history, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
		    level         = EXCLUDED.level,
		    theme         = EXCLUDED.theme,
		    level_history = EXCLUDED.level_history,
		    updated_at    = now()`

	history := l.LevelHistory
	if history == nil {
		history = []int{}
	}
	if _, err := s.pool.Exec(ctx, q, l.Name, l.Level, l.Theme, history); err != nil {
		return fmt.Errorf("records: save learner: %w", err)
	}
	return nil
}

// LevelHistory implements [records.Store]. An unknown learner yields an
// empty slice.
func (s *Store) LevelHistory(ctx context.Context, name string) ([]int, error) {
	const q = `SELECT level_history FROM learners WHERE name = $1`

	var history []int
	err := s.pool.QueryRow(ctx, q, name).Scan(&history)
	if errors.Is(err, pgx.ErrNoRows) {
		return []int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("records: load level history: %w", err)
	}
	if history == nil {
		history = []int{}
	}
	return history, nil
}
