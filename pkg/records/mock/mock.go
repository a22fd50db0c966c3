// Package mock provides in-memory test doubles for the records interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/echolalia-dev/echolalia/pkg/records"
)

// Store is a mock implementation of [records.Store] and
// [records.SentenceIndex] backed by in-memory maps. The zero value is ready
// to use. Set Err fields to inject errors.
type Store struct {
	mu sync.Mutex

	// SaveAttemptErr, SaveLearnerErr, LookupErr inject errors into the
	// corresponding methods.
	SaveAttemptErr error
	SaveLearnerErr error
	LookupErr      error

	// IndexErr and NearestErr inject errors into the sentence index methods.
	IndexErr   error
	NearestErr error

	// Neighbors is returned by Nearest.
	Neighbors []records.SentenceNeighbor

	attempts []records.Attempt
	learners map[string]records.Learner

	// Indexed records every sentence passed to IndexSentence, in order.
	Indexed []string
}

// SaveAttempt implements [records.Store].
func (s *Store) SaveAttempt(_ context.Context, a records.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveAttemptErr != nil {
		return s.SaveAttemptErr
	}
	s.attempts = append(s.attempts, a)
	return nil
}

// Attempts implements [records.Store]. Results are returned newest first.
func (s *Store) Attempts(_ context.Context, user string, limit int) ([]records.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LookupErr != nil {
		return nil, s.LookupErr
	}
	var out []records.Attempt
	for i := len(s.attempts) - 1; i >= 0; i-- {
		if s.attempts[i].User != user {
			continue
		}
		out = append(out, s.attempts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SavedAttempts returns every attempt saved so far, oldest first.
func (s *Store) SavedAttempts() []records.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Attempt(nil), s.attempts...)
}

// Learner implements [records.Store].
func (s *Store) Learner(_ context.Context, name string) (*records.Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LookupErr != nil {
		return nil, s.LookupErr
	}
	l, ok := s.learners[name]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// SaveLearner implements [records.Store].
func (s *Store) SaveLearner(_ context.Context, l records.Learner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveLearnerErr != nil {
		return s.SaveLearnerErr
	}
	if s.learners == nil {
		s.learners = make(map[string]records.Learner)
	}
	s.learners[l.Name] = l
	return nil
}

// LevelHistory implements [records.Store].
func (s *Store) LevelHistory(_ context.Context, name string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LookupErr != nil {
		return nil, s.LookupErr
	}
	l, ok := s.learners[name]
	if !ok {
		return []int{}, nil
	}
	return append([]int(nil), l.LevelHistory...), nil
}

// IndexSentence implements [records.SentenceIndex].
func (s *Store) IndexSentence(_ context.Context, _, sentence string, _ []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	s.Indexed = append(s.Indexed, sentence)
	return nil
}

// Nearest implements [records.SentenceIndex].
func (s *Store) Nearest(_ context.Context, _ string, _ []float32, topK int) ([]records.SentenceNeighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NearestErr != nil {
		return nil, s.NearestErr
	}
	if topK > 0 && len(s.Neighbors) > topK {
		return append([]records.SentenceNeighbor(nil), s.Neighbors[:topK]...), nil
	}
	return append([]records.SentenceNeighbor(nil), s.Neighbors...), nil
}

// Ensure Store implements the records interfaces at compile time.
var (
	_ records.Store         = (*Store)(nil)
	_ records.SentenceIndex = (*Store)(nil)
)
