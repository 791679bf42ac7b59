package strategy

import (
	"context"
	"sync"

	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
)

// Adaptive sizes retrieval to the query. A classifier call decides between
// answering from the conversation alone, one hybrid search, or hybrid search
// combined with graph traversal for queries that span entities.
type Adaptive struct {
	deps Deps
}

// NewAdaptive creates the adaptive strategy.
func NewAdaptive(deps Deps) *Adaptive {
	return &Adaptive{deps: deps}
}

// Retrieve implements rag.Strategy.
func (a *Adaptive) Retrieve(ctx context.Context, query string, history rag.History) (rag.RetrievalResult, error) {
	cfg := a.deps.Config

	switch category := classify(ctx, a.deps.LLM, query, cfg.ClassifierMaxTokens); category {
	case CategoryNone:
		log.Debug("adaptive: query classified as off-topic, skipping retrieval")
		return rag.RetrievalResult{}, nil

	case CategoryStandard:
		return a.searchHybrid(ctx, query), nil

	default: // CategoryComplex
		var (
			wg       sync.WaitGroup
			searched rag.RetrievalResult
			facts    rag.RetrievalResult
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			searched = a.searchHybrid(ctx, query)
		}()
		go func() {
			defer wg.Done()
			facts = traverseGraph(ctx, a.deps, query)
		}()
		wg.Wait()

		return rag.DeduplicateBySource(append(searched, facts...)), nil
	}
}

// searchHybrid runs one hybrid search, returning empty evidence when the
// store is missing or fails.
func (a *Adaptive) searchHybrid(ctx context.Context, query string) rag.RetrievalResult {
	if a.deps.Unstructured == nil {
		return rag.RetrievalResult{}
	}
	items, err := a.deps.Unstructured.Search(ctx, query, a.deps.Config.TopK, rag.SearchHybrid)
	if err != nil {
		log.Warn("adaptive: hybrid search failed, continuing without evidence: %v", err)
		return rag.RetrievalResult{}
	}
	return items
}

// Generate implements rag.Strategy.
func (a *Adaptive) Generate(ctx context.Context, query string, evidence rag.RetrievalResult, history rag.History) (<-chan rag.StreamEvent, error) {
	return generate(ctx, a.deps.LLM, a.deps.Config, query, evidence, history)
}
