// Package memory provides an in-memory implementation of the records
// interfaces. It backs servers that run without a PostgreSQL DSN: learners,
// attempts, and the sentence index all live in process memory and vanish on
// restart.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/echolalia-dev/echolalia/pkg/records"
)

var (
	_ records.Store         = (*Store)(nil)
	_ records.SentenceIndex = (*Store)(nil)
)

// indexedSentence is one stored sentence with its embedding.
type indexedSentence struct {
	sentence  string
	embedding []float32
}

// Store keeps all records in memory. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	learners  map[string]records.Learner
	attempts  map[string][]records.Attempt
	sentences map[string][]indexedSentence
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		learners:  make(map[string]records.Learner),
		attempts:  make(map[string][]records.Attempt),
		sentences: make(map[string][]indexedSentence),
	}
}

// SaveAttempt implements [records.Store].
func (s *Store) SaveAttempt(_ context.Context, a records.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.User] = append(s.attempts[a.User], a)
	return nil
}

// Attempts implements [records.Store]. Attempts are returned newest first.
func (s *Store) Attempts(_ context.Context, user string, limit int) ([]records.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.attempts[user]
	out := make([]records.Attempt, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Learner implements [records.Store].
func (s *Store) Learner(_ context.Context, name string) (*records.Learner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[name]
	if !ok {
		return nil, nil
	}
	l.LevelHistory = append([]int(nil), l.LevelHistory...)
	return &l, nil
}

// SaveLearner implements [records.Store].
func (s *Store) SaveLearner(_ context.Context, l records.Learner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.LevelHistory = append([]int(nil), l.LevelHistory...)
	l.UpdatedAt = time.Now()
	s.learners[l.Name] = l
	return nil
}

// LevelHistory implements [records.Store].
func (s *Store) LevelHistory(_ context.Context, name string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.learners[name]
	if !ok {
		return []int{}, nil
	}
	return append([]int(nil), l.LevelHistory...), nil
}

// IndexSentence implements [records.SentenceIndex].
func (s *Store) IndexSentence(_ context.Context, user, sentence string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sentences[user] = append(s.sentences[user], indexedSentence{
		sentence:  sentence,
		embedding: append([]float32(nil), embedding...),
	})
	return nil
}

// Nearest implements [records.SentenceIndex] with a linear scan. The per-user
// sentence counts stay small enough that brute force beats maintaining an
// index structure.
func (s *Store) Nearest(_ context.Context, user string, embedding []float32, topK int) ([]records.SentenceNeighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.sentences[user]
	neighbors := make([]records.SentenceNeighbor, 0, len(stored))
	for _, is := range stored {
		neighbors = append(neighbors, records.SentenceNeighbor{
			Sentence: is.sentence,
			Distance: cosineDistance(embedding, is.embedding),
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if topK > 0 && len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}

// cosineDistance computes 1 minus the cosine similarity of a and b, matching
// what pgvector's <=> operator yields. Mismatched or zero-norm vectors map to
// the maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
