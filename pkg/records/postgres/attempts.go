package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/echolalia-dev/echolalia/pkg/records"
)

// SaveAttempt implements [records.Store].
func (s *Store) SaveAttempt(ctx context.Context, a records.Attempt) error {
	const q = `
		INSERT INTO attempts
		    (user_name, original_text, transcribed_text, level, theme, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		a.User,
		a.OriginalText,
		a.TranscribedText,
		a.Level,
		a.Theme,
		a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("records: save attempt: %w", err)
	}
	return nil
}

// Attempts implements [records.Store]. Results are ordered newest first.
func (s *Store) Attempts(ctx context.Context, user string, limit int) ([]records.Attempt, error) {
	q := `
		SELECT user_name, original_text, transcribed_text, level, theme, timestamp
		FROM   attempts
		WHERE  user_name = $1
		ORDER  BY timestamp DESC`

	args := []any{user}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: load attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.Attempt, error) {
		var a records.Attempt
		err := row.Scan(
			&a.User,
			&a.OriginalText,
			&a.TranscribedText,
			&a.Level,
			&a.Theme,
			&a.Timestamp,
		)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("records: scan attempts: %w", err)
	}
	if attempts == nil {
		attempts = []records.Attempt{}
	}
	return attempts, nil
}
