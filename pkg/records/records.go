// Package records defines the persistence interfaces for learner data: the
// durable learner profile (level, theme, level history), the per-attempt
// shadowing log, and the embedding-backed sentence index used to measure how
// repetitive the generated lessons are.
//
// Implementations must be safe for concurrent use.
package records

import (
	"context"
	"time"
)

// Attempt is one persisted grading or shadowing attempt.
type Attempt struct {
	// User is the learner's name.
	User string

	// OriginalText is what the learner was asked to reproduce: the lesson
	// sentence for shadowing attempts, the raw profile text for the initial
	// grading.
	OriginalText string

	// TranscribedText is what came back: the recognized speech or the
	// graded level as returned by the model.
	TranscribedText string

	// Level is the learner's level when the attempt was made.
	Level int

	// Theme is the lesson theme in effect.
	Theme string

	// Timestamp is when the attempt completed.
	Timestamp time.Time
}

// Learner is the durable per-user state that survives across sessions.
type Learner struct {
	// Name is the unique learner name.
	Name string

	// Level is the current difficulty level.
	Level int

	// Theme is the most recently chosen lesson theme.
	Theme string

	// LevelHistory is the append-only sequence of levels the learner has
	// passed through, oldest first.
	LevelHistory []int

	// UpdatedAt is when the record was last written. Set by the store.
	UpdatedAt time.Time
}

// Store persists learners and their attempts.
type Store interface {
	// SaveAttempt records one attempt.
	SaveAttempt(ctx context.Context, a Attempt) error

	// Attempts returns up to limit of the learner's most recent attempts,
	// newest first. limit <= 0 means no limit.
	Attempts(ctx context.Context, user string, limit int) ([]Attempt, error)

	// Learner returns the stored learner by name. Returns (nil, nil) when
	// the name is unknown.
	Learner(ctx context.Context, name string) (*Learner, error)

	// SaveLearner upserts the learner's durable state.
	SaveLearner(ctx context.Context, l Learner) error

	// LevelHistory returns the learner's stored level history, oldest first.
	// An unknown learner yields an empty slice, not an error.
	LevelHistory(ctx context.Context, name string) ([]int, error)
}

// SentenceNeighbor is one nearest-neighbour hit from the sentence index.
type SentenceNeighbor struct {
	// Sentence is the previously indexed sentence.
	Sentence string

	// Distance is the cosine distance to the query embedding; smaller means
	// more similar.
	Distance float64
}

// SentenceIndex stores embeddings of generated sentences per learner and
// answers nearest-neighbour queries against them.
type SentenceIndex interface {
	// IndexSentence stores one sentence with its pre-computed embedding.
	IndexSentence(ctx context.Context, user, sentence string, embedding []float32) error

	// Nearest returns up to topK sentences of the given learner closest to
	// the query embedding, most similar first.
	Nearest(ctx context.Context, user string, embedding []float32, topK int) ([]SentenceNeighbor, error)
}
