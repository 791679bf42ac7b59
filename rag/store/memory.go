package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smallnest/ragserve/rag"
)

// MemoryIndex is an in-process unstructured store. Lexical mode scores by
// query-term frequency normalized by passage length; semantic mode by cosine
// similarity over the configured embedder's vectors; hybrid mode fuses both
// lists by reciprocal rank.
type MemoryIndex struct {
	mu         sync.RWMutex
	passages   []rag.Passage
	embeddings [][]float32
	embedder   rag.Embedder
}

// NewMemoryIndex creates an empty MemoryIndex. The embedder may be nil, in
// which case semantic search returns ErrUnsupportedMode and hybrid search
// serves the lexical ranking alone.
func NewMemoryIndex(embedder rag.Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// Add indexes passages, embedding them when an embedder is configured.
func (m *MemoryIndex) Add(ctx context.Context, passages ...rag.Passage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range passages {
		var embedding []float32
		if m.embedder != nil {
			var err error
			embedding, err = m.embedder.EmbedDocument(ctx, p.Content)
			if err != nil {
				return fmt.Errorf("failed to embed passage %s: %w", p.ID, err)
			}
		}
		m.passages = append(m.passages, p)
		m.embeddings = append(m.embeddings, embedding)
	}
	return nil
}

// Len returns the number of indexed passages.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages)
}

// Search implements rag.UnstructuredStore.
func (m *MemoryIndex) Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.EvidenceItem, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	switch mode {
	case rag.SearchLexical:
		return m.searchLexical(query, k), nil
	case rag.SearchSemantic:
		return m.searchSemantic(ctx, query, k)
	case rag.SearchHybrid:
		lex := m.searchLexical(query, k)
		// Without an embedder, hybrid degrades to the lexical ranking so an
		// embedder-less deployment still retrieves.
		if m.embedder == nil {
			return lex, nil
		}
		sem, err := m.searchSemantic(ctx, query, k)
		if err != nil {
			return nil, err
		}
		fused := rag.FuseByReciprocalRank(rag.DefaultRRFConstant, k, lex, sem)
		return fused, nil
	default:
		return nil, fmt.Errorf("%w: %q", rag.ErrUnsupportedMode, mode)
	}
}

func (m *MemoryIndex) searchLexical(query string, k int) []rag.EvidenceItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	results := make([]rag.EvidenceItem, 0)
	for _, p := range m.passages {
		content := strings.ToLower(p.Content)

		var score float64
		for _, term := range terms {
			score += float64(strings.Count(content, term))
		}
		if score == 0 {
			continue
		}
		// Normalize by passage length so short exact matches beat long
		// passages that merely mention a term.
		score = score / float64(len(content)) * 1000

		results = append(results, rag.EvidenceItem{
			Source:  p.ID,
			Content: p.Content,
			Origin:  rag.OriginLexical,
			Score:   score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (m *MemoryIndex) searchSemantic(ctx context.Context, query string, k int) ([]rag.EvidenceItem, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", rag.ErrUnsupportedMode)
	}

	queryEmbedding, err := m.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]rag.EvidenceItem, 0, len(m.passages))
	for i, p := range m.passages {
		if len(m.embeddings[i]) == 0 {
			continue
		}
		results = append(results, rag.EvidenceItem{
			Source:  p.ID,
			Content: p.Content,
			Origin:  rag.OriginSemantic,
			Score:   cosineSimilarity(queryEmbedding, m.embeddings[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
