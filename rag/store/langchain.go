package store

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/ragserve/rag"
)

// LangChainStore adapts a langchaingo vector store to rag.UnstructuredStore.
// Vector stores only support similarity search, so only the semantic mode is
// available; lexical and hybrid return rag.ErrUnsupportedMode.
type LangChainStore struct {
	store vectorstores.VectorStore
}

// NewLangChainStore wraps a langchaingo vector store.
func NewLangChainStore(store vectorstores.VectorStore) *LangChainStore {
	return &LangChainStore{store: store}
}

// Search implements rag.UnstructuredStore.
func (l *LangChainStore) Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.EvidenceItem, error) {
	if mode != rag.SearchSemantic {
		return nil, fmt.Errorf("%w: vector stores only support semantic search", rag.ErrUnsupportedMode)
	}
	if k <= 0 {
		k = 5
	}

	docs, err := l.store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	items := make([]rag.EvidenceItem, 0, len(docs))
	for i, doc := range docs {
		source := fmt.Sprintf("doc_%d", i)
		if s, ok := doc.Metadata["source"].(string); ok && s != "" {
			source = s
		} else if id, ok := doc.Metadata["id"].(string); ok && id != "" {
			source = id
		}
		items = append(items, rag.EvidenceItem{
			Source:  source,
			Content: doc.PageContent,
			Origin:  rag.OriginSemantic,
			Score:   float64(doc.Score),
		})
	}
	return items, nil
}

// LangChainEmbedder adapts a langchaingo embedder to rag.Embedder. The
// dimension is probed lazily from the first embedding when not given.
type LangChainEmbedder struct {
	embedder  embeddings.Embedder
	dimension int
}

// NewLangChainEmbedder wraps a langchaingo embedder. Pass the embedding
// dimension if known; zero means it will be discovered on first use.
func NewLangChainEmbedder(embedder embeddings.Embedder, dimension int) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder, dimension: dimension}
}

// EmbedDocument implements rag.Embedder.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vector, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if l.dimension == 0 {
		l.dimension = len(vector)
	}
	return vector, nil
}

// EmbedDocuments implements rag.Embedder.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if l.dimension == 0 && len(vectors) > 0 {
		l.dimension = len(vectors[0])
	}
	return vectors, nil
}

// GetDimension implements rag.Embedder.
func (l *LangChainEmbedder) GetDimension() int {
	return l.dimension
}
