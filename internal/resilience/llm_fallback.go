package resilience

import (
	"context"

	"github.com/echolalia-dev/echolalia/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] across an ordered set of backends.
// Profile grading and sentence generation keep working as long as one
// configured model is reachable.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(name string, primary llm.Provider, cfg GroupConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers an additional model to try when earlier ones fail.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Complete sends req to the first healthy backend and returns its response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
