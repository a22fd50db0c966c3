package novelty

import (
	"context"
	"errors"
	"math"
	"testing"

	embmock "github.com/echolalia-dev/echolalia/pkg/provider/embeddings/mock"
	"github.com/echolalia-dev/echolalia/pkg/records"
	recmock "github.com/echolalia-dev/echolalia/pkg/records/mock"
)

func TestObserve_FirstSentence(t *testing.T) {
	embed := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	store := &recmock.Store{}
	idx := New(embed, store)

	sim, repeat, err := idx.Observe(context.Background(), "Kim", "The cat sat.")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if sim != 0 {
		t.Errorf("similarity with empty index: got %v, want 0", sim)
	}
	if repeat {
		t.Error("first sentence must not count as a repeat")
	}
	if len(store.Indexed) != 1 || store.Indexed[0] != "The cat sat." {
		t.Errorf("indexed sentences: %v", store.Indexed)
	}
}

func TestObserve_NearDuplicate(t *testing.T) {
	embed := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	store := &recmock.Store{
		Neighbors: []records.SentenceNeighbor{
			{Sentence: "The cat sat.", Distance: 0.02},
		},
	}
	idx := New(embed, store)

	sim, repeat, err := idx.Observe(context.Background(), "Kim", "A cat sat.")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if math.Abs(sim-0.98) > 1e-9 {
		t.Errorf("similarity: got %v, want 0.98", sim)
	}
	if !repeat {
		t.Error("similarity above the threshold must count as a repeat")
	}
}

func TestObserve_BelowThreshold(t *testing.T) {
	embed := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}
	store := &recmock.Store{
		Neighbors: []records.SentenceNeighbor{
			{Sentence: "Dogs bark loudly.", Distance: 0.4},
		},
	}
	idx := New(embed, store)

	sim, repeat, err := idx.Observe(context.Background(), "Kim", "The cat sat.")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if math.Abs(sim-0.6) > 1e-9 {
		t.Errorf("similarity: got %v, want 0.6", sim)
	}
	if repeat {
		t.Error("similarity below the threshold must not count as a repeat")
	}
}

func TestObserve_CustomThreshold(t *testing.T) {
	embed := &embmock.Provider{EmbedResult: []float32{0.1}}
	store := &recmock.Store{
		Neighbors: []records.SentenceNeighbor{{Sentence: "x", Distance: 0.3}},
	}
	idx := New(embed, store, WithRepeatThreshold(0.5))

	_, repeat, err := idx.Observe(context.Background(), "Kim", "The cat sat.")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !repeat {
		t.Error("0.7 similarity should exceed a 0.5 threshold")
	}
}

func TestObserve_EmbedError(t *testing.T) {
	embed := &embmock.Provider{EmbedErr: errors.New("backend down")}
	idx := New(embed, &recmock.Store{})

	if _, _, err := idx.Observe(context.Background(), "Kim", "The cat sat."); err == nil {
		t.Fatal("expected error")
	}
}

func TestObserve_IndexError(t *testing.T) {
	embed := &embmock.Provider{EmbedResult: []float32{0.1}}
	store := &recmock.Store{IndexErr: errors.New("insert failed")}
	idx := New(embed, store)

	if _, _, err := idx.Observe(context.Background(), "Kim", "The cat sat."); err == nil {
		t.Fatal("expected error")
	}
}
