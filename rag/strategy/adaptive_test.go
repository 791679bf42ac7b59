package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragserve/rag"
)

func TestAdaptiveOffTopicSkipsRetrieval(t *testing.T) {
	llm := &scriptedLLM{classifierReply: "irrelevant"}
	store := &recordingStore{}
	graph := &recordingGraph{}
	adaptive := NewAdaptive(Deps{Unstructured: store, Graph: graph, LLM: llm, Config: Config{}.withDefaults()})

	result, err := adaptive.Retrieve(context.Background(), "what's the weather", nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Empty(t, store.searchedModes())
	assert.Empty(t, graph.traversals())
}

func TestAdaptiveStandardRunsOneHybridSearch(t *testing.T) {
	llm := &scriptedLLM{classifierReply: "relevant"}
	store := &recordingStore{
		results: map[rag.SearchMode][]rag.EvidenceItem{
			rag.SearchHybrid: {evidence("doc_1", rag.OriginLexical)},
		},
	}
	graph := &recordingGraph{}
	adaptive := NewAdaptive(Deps{Unstructured: store, Graph: graph, LLM: llm, Config: Config{}.withDefaults()})

	result, err := adaptive.Retrieve(context.Background(), "what jobs are open", nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "doc_1", result[0].Source)
	assert.Equal(t, []rag.SearchMode{rag.SearchHybrid}, store.searchedModes())
	assert.Empty(t, graph.traversals())
}

func TestAdaptiveComplexCombinesSearchAndGraph(t *testing.T) {
	llm := &scriptedLLM{
		classifierReply: "complex",
		entityReply:     "Acme Corp, Berlin",
	}
	store := &recordingStore{
		results: map[rag.SearchMode][]rag.EvidenceItem{
			rag.SearchHybrid: {evidence("doc_1", rag.OriginLexical)},
		},
	}
	graph := &recordingGraph{
		sub: &rag.Subgraph{Facts: []rag.Fact{
			{Subject: "Acme Corp", Relation: "LOCATED_IN", Object: "Berlin"},
		}},
	}
	adaptive := NewAdaptive(Deps{Unstructured: store, Graph: graph, LLM: llm, Config: Config{}.withDefaults()})

	result, err := adaptive.Retrieve(context.Background(), "jobs at Acme Corp in Berlin", nil)
	require.NoError(t, err)
	require.Len(t, result, 2)

	sources := result.Sources()
	assert.Contains(t, sources, "doc_1")
	assert.Contains(t, sources, "Acme Corp - LOCATED_IN -> Berlin")

	traversals := graph.traversals()
	require.Len(t, traversals, 1)
	assert.Equal(t, []string{"Acme Corp", "Berlin"}, traversals[0])
}

func TestAdaptiveClassifierFailureDefaultsToStandard(t *testing.T) {
	llm := &scriptedLLM{classifierErr: errors.New("model offline")}
	store := &recordingStore{
		results: map[rag.SearchMode][]rag.EvidenceItem{
			rag.SearchHybrid: {evidence("doc_1", rag.OriginLexical)},
		},
	}
	adaptive := NewAdaptive(Deps{Unstructured: store, LLM: llm, Config: Config{}.withDefaults()})

	result, err := adaptive.Retrieve(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, []rag.SearchMode{rag.SearchHybrid}, store.searchedModes())
}

func TestAdaptiveJunkLabelDefaultsToStandard(t *testing.T) {
	llm := &scriptedLLM{classifierReply: "I think this query is quite interesting"}
	store := &recordingStore{}
	adaptive := NewAdaptive(Deps{Unstructured: store, LLM: llm, Config: Config{}.withDefaults()})

	_, err := adaptive.Retrieve(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, []rag.SearchMode{rag.SearchHybrid}, store.searchedModes())
}

func TestAdaptiveSearchFailureDegradesToEmpty(t *testing.T) {
	llm := &scriptedLLM{classifierReply: "relevant"}
	store := &recordingStore{
		errs: map[rag.SearchMode]error{rag.SearchHybrid: errors.New("index down")},
	}
	adaptive := NewAdaptive(Deps{Unstructured: store, LLM: llm, Config: Config{}.withDefaults()})

	result, err := adaptive.Retrieve(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestAdaptiveGenerateStreams(t *testing.T) {
	llm := &scriptedLLM{streamTokens: []string{"an ", "answer"}}
	adaptive := NewAdaptive(Deps{LLM: llm, Config: Config{}.withDefaults()})

	events, err := adaptive.Generate(context.Background(), "question",
		rag.RetrievalResult{evidence("doc_1", rag.OriginLexical)},
		rag.History{{Role: rag.RoleSystem, Content: "sys"}},
	)
	require.NoError(t, err)

	out, err := collect(events)
	require.NoError(t, err)
	assert.Equal(t, "an answer", out)

	// History plus the rendered question with context.
	require.Len(t, llm.lastMessages, 2)
	final := llm.lastMessages[1]
	assert.Equal(t, rag.RoleUser, final.Role)
	assert.Contains(t, final.Content, "question")
	assert.Contains(t, final.Content, "content of doc_1")
}
