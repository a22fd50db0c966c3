// Package novelty tracks how repetitive the generated lesson sentences are.
// Every generated sentence is embedded and stored per learner; before
// storing, the nearest previously stored sentence is looked up so that
// near-duplicates can be counted and logged. The result never feeds back
// into generation, which only ever sees the short rolling history.
package novelty

import (
	"context"
	"fmt"
	"time"

	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/observe"
	"github.com/echolalia-dev/echolalia/pkg/provider/embeddings"
	"github.com/echolalia-dev/echolalia/pkg/records"
)

// defaultRepeatThreshold is the cosine similarity above which a sentence
// counts as a near-duplicate of an earlier one.
const defaultRepeatThreshold = 0.95

var _ lesson.NoveltyIndex = (*Index)(nil)

// Option configures an [Index].
type Option func(*Index)

// WithRepeatThreshold overrides the near-duplicate similarity threshold.
func WithRepeatThreshold(threshold float64) Option {
	return func(i *Index) { i.repeatThreshold = threshold }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(i *Index) { i.metrics = m }
}

// Index implements [lesson.NoveltyIndex] on top of an embeddings provider
// and the sentence store. Safe for concurrent use.
type Index struct {
	embed           embeddings.Provider
	store           records.SentenceIndex
	metrics         *observe.Metrics
	repeatThreshold float64
}

// New creates an Index.
func New(embed embeddings.Provider, store records.SentenceIndex, opts ...Option) *Index {
	i := &Index{
		embed:           embed,
		store:           store,
		metrics:         observe.DefaultMetrics(),
		repeatThreshold: defaultRepeatThreshold,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Observe implements [lesson.NoveltyIndex]: it embeds the sentence, checks
// it against the learner's stored sentences, then stores it. similarity is
// the cosine similarity to the nearest stored sentence, 0 when none exist.
func (i *Index) Observe(ctx context.Context, user, sentence string) (float64, bool, error) {
	ctx, span := observe.StartSpan(ctx, "novelty.observe")
	defer span.End()

	start := time.Now()
	vec, err := i.embed.Embed(ctx, sentence)
	i.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return 0, false, fmt.Errorf("novelty: embed sentence: %w", err)
	}

	neighbors, err := i.store.Nearest(ctx, user, vec, 1)
	if err != nil {
		return 0, false, fmt.Errorf("novelty: nearest lookup: %w", err)
	}

	var similarity float64
	if len(neighbors) > 0 {
		// pgvector's <=> operator yields cosine distance.
		similarity = 1 - neighbors[0].Distance
	}

	if err := i.store.IndexSentence(ctx, user, sentence, vec); err != nil {
		return similarity, false, fmt.Errorf("novelty: index sentence: %w", err)
	}

	return similarity, similarity >= i.repeatThreshold, nil
}
