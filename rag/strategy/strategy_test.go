package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragserve/rag"
)

func newTestRegistry() *Registry {
	return NewRegistry(Deps{
		Unstructured: &recordingStore{},
		Graph:        &recordingGraph{},
		LLM:          &scriptedLLM{},
	})
}

func TestRegistryGet(t *testing.T) {
	registry := newTestRegistry()

	for _, name := range []string{"adaptive", "Adaptive", "  FUSION ", "graph"} {
		s, err := registry.Get(name)
		require.NoError(t, err, "name %q", name)
		assert.NotNil(t, s)
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Get("magical")
	assert.ErrorIs(t, err, rag.ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "adaptive, fusion, graph")
}

func TestRegistryNames(t *testing.T) {
	assert.Equal(t, []string{"adaptive", "fusion", "graph"}, newTestRegistry().Names())
}

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		reply string
		want  Category
	}{
		{"irrelevant", CategoryNone},
		{"The query is irrelevant.", CategoryNone},
		{"relevant", CategoryStandard},
		{"complex", CategoryComplex},
		{"This looks Complex to me", CategoryComplex},
		{"no idea", CategoryStandard},
		{"", CategoryStandard},
	}
	for _, tt := range tests {
		llm := &scriptedLLM{classifierReply: tt.reply}
		got := classify(context.Background(), llm, "query", 5)
		assert.Equal(t, tt.want, got, "reply %q", tt.reply)
	}
}

func TestBuildContextSanitizesMarkup(t *testing.T) {
	ctx := buildContext(rag.RetrievalResult{
		{Source: "doc_1", Content: "<p>Plain &amp; simple</p>", Origin: rag.OriginLexical},
		{Source: "f", Content: "A - REL -> B", Origin: rag.OriginGraph},
	})

	assert.Contains(t, ctx, "Plain & simple")
	assert.NotContains(t, ctx, "<p>")
	// Graph facts keep their arrow notation.
	assert.Contains(t, ctx, "A - REL -> B")
}

func TestBuildContextEmpty(t *testing.T) {
	assert.Equal(t, "", buildContext(nil))
	assert.Equal(t, "", buildContext(rag.RetrievalResult{
		{Source: "blank", Content: "   ", Origin: rag.OriginLexical},
	}))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "none", CategoryNone.String())
	assert.Equal(t, "standard", CategoryStandard.String())
	assert.Equal(t, "complex", CategoryComplex.String())
}
