package strategy

import (
	"context"
	"strings"

	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
)

// Category is the classifier's verdict on a query.
type Category int

const (
	// CategoryNone means the query is off-topic; answer without retrieval.
	CategoryNone Category = iota
	// CategoryStandard means one hybrid search is enough.
	CategoryStandard
	// CategoryComplex means the query spans entities and needs graph
	// evidence alongside text search.
	CategoryComplex
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryStandard:
		return "standard"
	case CategoryComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// classify asks the model to label the query. The model is instructed to
// answer with one word, but replies are matched by substring to tolerate
// chatter around the label. "irrelevant" is checked before "relevant"
// because the former contains the latter. Unrecognized labels and call
// failures fall back to a standard search, keeping retrieval available when
// the classifier misbehaves.
func classify(ctx context.Context, llm rag.CompletionClient, query string, maxTokens int) Category {
	label, err := llm.Complete(ctx, []rag.Message{
		{Role: rag.RoleSystem, Content: rag.ClassifierSystemPrompt},
		{Role: rag.RoleUser, Content: rag.RenderClassifierPrompt(query)},
	}, maxTokens)
	if err != nil {
		log.Warn("query classification failed, defaulting to standard search: %v", err)
		return CategoryStandard
	}

	normalized := strings.ToLower(label)
	switch {
	case strings.Contains(normalized, "irrelevant"):
		return CategoryNone
	case strings.Contains(normalized, "relevant"):
		return CategoryStandard
	case strings.Contains(normalized, "complex"):
		return CategoryComplex
	default:
		log.Warn("classifier returned unrecognized label %q, defaulting to standard search", label)
		return CategoryStandard
	}
}
