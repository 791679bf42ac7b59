package rag

import (
	"context"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem is the persona/instruction role.
	RoleSystem Role = "system"
	// RoleUser is the human asking questions.
	RoleUser Role = "user"
	// RoleAssistant is the model's response role.
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered sequence of chat turns for one session.
// It is append-only during a session; truncation happens only when the
// composed prompt exceeds the model's context window.
type History []Message

// Clone returns an independent copy of the history. Strategies clone before
// appending the generation prompt so the stored history never contains the
// evidence-stuffed user turn.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Origin tags where a piece of evidence came from.
type Origin string

const (
	// OriginLexical marks keyword/term-matching search results.
	OriginLexical Origin = "lexical"
	// OriginSemantic marks vector-similarity search results.
	OriginSemantic Origin = "semantic"
	// OriginGraph marks facts linearized from a graph traversal.
	OriginGraph Origin = "graph"
)

// EvidenceItem is one retrieved unit: a passage or a linearized graph fact.
// Source is the stable source-document identifier used for deduplication.
type EvidenceItem struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Origin  Origin  `json:"origin"`
	Score   float64 `json:"score"`
}

// RetrievalResult is the relevance-ordered output of one strategy invocation.
type RetrievalResult []EvidenceItem

// Sources returns the source identifiers in result order.
func (r RetrievalResult) Sources() []string {
	out := make([]string, len(r))
	for i, item := range r {
		out[i] = item.Source
	}
	return out
}

// SearchMode selects how an UnstructuredStore matches a query.
type SearchMode string

const (
	// SearchLexical is keyword/term matching.
	SearchLexical SearchMode = "lexical"
	// SearchSemantic is embedding-similarity matching.
	SearchSemantic SearchMode = "semantic"
	// SearchHybrid combines both in one store-side search.
	SearchHybrid SearchMode = "hybrid"
)

// StreamEvent is one unit of a generation stream: either a token or a
// terminal error. The producing channel is closed when generation completes.
type StreamEvent struct {
	Token string
	Err   error
}

// Passage is an indexable unit of website content held by an
// UnstructuredStore. ID doubles as the evidence Source.
type Passage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Fact is one edge of a knowledge graph, returned by a traversal.
type Fact struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// String linearizes the fact for prompt context, e.g.
// "Acme - OFFERS -> Internship Program".
func (f Fact) String() string {
	return fmt.Sprintf("%s - %s -> %s", f.Subject, f.Relation, f.Object)
}

// Subgraph is the connected slice of the graph reached from the seeds.
type Subgraph struct {
	Facts []Fact
}

// UnstructuredStore wraps a text-search/vector-search backend.
type UnstructuredStore interface {
	// Search returns up to k passages ranked by relevance. Implementations
	// that do not support the requested mode return an error wrapping
	// ErrUnsupportedMode.
	Search(ctx context.Context, query string, k int, mode SearchMode) ([]EvidenceItem, error)
}

// GraphStore wraps a graph database.
type GraphStore interface {
	// Traverse collects facts connected to the seed entities up to the given
	// depth. An empty subgraph is not an error.
	Traverse(ctx context.Context, seeds []string, depth int) (*Subgraph, error)
}

// CompletionClient wraps an LLM completion endpoint.
type CompletionClient interface {
	// Complete returns the full response text for a prompt. Used for cheap
	// auxiliary calls (classification, entity extraction).
	Complete(ctx context.Context, msgs []Message, maxTokens int) (string, error)

	// Stream returns a channel of response tokens. The channel is closed when
	// generation finishes; a mid-stream failure is delivered as a final event
	// with Err set. Cancelling ctx stops token production.
	Stream(ctx context.Context, msgs []Message, maxTokens int) (<-chan StreamEvent, error)
}

// Embedder produces vector representations for semantic search.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// Strategy is the contract every retrieval strategy implements. Retrieve
// gathers evidence for a query; Generate streams a response conditioned on
// whatever evidence (possibly none) was produced. Generate always runs, even
// with empty evidence.
type Strategy interface {
	Retrieve(ctx context.Context, query string, history History) (RetrievalResult, error)
	Generate(ctx context.Context, query string, evidence RetrievalResult, history History) (<-chan StreamEvent, error)
}
