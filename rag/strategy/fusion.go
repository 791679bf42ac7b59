package strategy

import (
	"context"
	"sync"

	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
)

// Fusion always runs lexical and semantic search concurrently and fuses the
// two rankings by reciprocal rank. A branch that fails contributes nothing;
// the other branch still counts.
type Fusion struct {
	deps Deps
}

// NewFusion creates the fusion strategy.
func NewFusion(deps Deps) *Fusion {
	return &Fusion{deps: deps}
}

// Retrieve implements rag.Strategy.
func (f *Fusion) Retrieve(ctx context.Context, query string, history rag.History) (rag.RetrievalResult, error) {
	cfg := f.deps.Config
	if f.deps.Unstructured == nil {
		return rag.RetrievalResult{}, nil
	}

	var (
		wg       sync.WaitGroup
		lexical  []rag.EvidenceItem
		semantic []rag.EvidenceItem
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = f.search(ctx, query, rag.SearchLexical)
	}()
	go func() {
		defer wg.Done()
		semantic = f.search(ctx, query, rag.SearchSemantic)
	}()
	wg.Wait()

	return rag.FuseByReciprocalRank(cfg.RRFConstant, cfg.TopK, lexical, semantic), nil
}

func (f *Fusion) search(ctx context.Context, query string, mode rag.SearchMode) []rag.EvidenceItem {
	items, err := f.deps.Unstructured.Search(ctx, query, f.deps.Config.TopK, mode)
	if err != nil {
		log.Warn("fusion: %s search failed, fusing without it: %v", mode, err)
		return nil
	}
	return items
}

// Generate implements rag.Strategy.
func (f *Fusion) Generate(ctx context.Context, query string, evidence rag.RetrievalResult, history rag.History) (<-chan rag.StreamEvent, error) {
	return generate(ctx, f.deps.LLM, f.deps.Config, query, evidence, history)
}
