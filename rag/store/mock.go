package store

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder is a deterministic embedder for testing and development. Each
// text becomes a normalized bag-of-words vector with tokens hashed into
// dimension buckets, so identical texts embed identically and texts sharing
// vocabulary score higher than unrelated ones.
type MockEmbedder struct {
	Dimension int
}

// NewMockEmbedder creates a MockEmbedder with the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{Dimension: dimension}
}

// EmbedDocument generates a mock embedding for one text.
func (e *MockEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.generate(text), nil
}

// EmbedDocuments generates mock embeddings for multiple texts.
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.generate(text)
	}
	return out, nil
}

// GetDimension returns the embedding dimension.
func (e *MockEmbedder) GetDimension() int {
	return e.Dimension
}

func (e *MockEmbedder) generate(text string) []float32 {
	embedding := make([]float32, e.Dimension)
	if e.Dimension == 0 {
		return embedding
	}

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		embedding[int(h.Sum32())%e.Dimension]++
	}

	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return embedding
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range embedding {
		embedding[i] *= scale
	}
	return embedding
}

// cosineSimilarity computes cosine similarity between two embeddings.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
