package strategy

import (
	"context"
	"regexp"
	"strings"

	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
)

// Graph retrieves evidence exclusively from the knowledge graph: entities
// are extracted from the query by the model and used as traversal seeds.
// There is no text-search fallback; a query that yields no entities or no
// reachable facts generates from the conversation alone.
type Graph struct {
	deps Deps
}

// NewGraph creates the graph strategy.
func NewGraph(deps Deps) *Graph {
	return &Graph{deps: deps}
}

// Retrieve implements rag.Strategy.
func (g *Graph) Retrieve(ctx context.Context, query string, history rag.History) (rag.RetrievalResult, error) {
	return traverseGraph(ctx, g.deps, query), nil
}

// Generate implements rag.Strategy.
func (g *Graph) Generate(ctx context.Context, query string, evidence rag.RetrievalResult, history rag.History) (<-chan rag.StreamEvent, error) {
	return generate(ctx, g.deps.LLM, g.deps.Config, query, evidence, history)
}

// traverseGraph extracts entities from the query and walks the graph around
// them. Missing store, failed extraction and failed traversal all degrade to
// empty evidence. Shared with the adaptive strategy's complex branch.
func traverseGraph(ctx context.Context, deps Deps, query string) rag.RetrievalResult {
	if deps.Graph == nil {
		return rag.RetrievalResult{}
	}

	seeds := extractEntities(ctx, deps.LLM, query, deps.Config)
	if len(seeds) == 0 {
		log.Debug("graph: no entities extracted from query, skipping traversal")
		return rag.RetrievalResult{}
	}

	sub, err := deps.Graph.Traverse(ctx, seeds, deps.Config.GraphDepth)
	if err != nil {
		log.Warn("graph: traversal failed, continuing without evidence: %v", err)
		return rag.RetrievalResult{}
	}

	evidence := make(rag.RetrievalResult, 0, len(sub.Facts))
	for _, fact := range sub.Facts {
		linearized := fact.String()
		evidence = append(evidence, rag.EvidenceItem{
			Source:  linearized,
			Content: linearized,
			Origin:  rag.OriginGraph,
			Score:   1.0,
		})
	}
	return evidence
}

var (
	quoteChars = regexp.MustCompile(`["'\[\]]`)
	punctChars = regexp.MustCompile(`[.,!?;:(){}]`)
)

// cleanEntity strips quoting and punctuation the model tends to wrap
// entities in.
func cleanEntity(s string) string {
	s = quoteChars.ReplaceAllString(s, "")
	s = punctChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractEntities asks the model for a comma-separated entity list and
// parses it defensively. Extraction failure returns no seeds.
func extractEntities(ctx context.Context, llm rag.CompletionClient, query string, cfg Config) []string {
	reply, err := llm.Complete(ctx, []rag.Message{
		{Role: rag.RoleSystem, Content: rag.EntitySystemPrompt},
		{Role: rag.RoleUser, Content: rag.RenderEntityPrompt(query)},
	}, cfg.EntityMaxTokens)
	if err != nil {
		log.Warn("graph: entity extraction failed: %v", err)
		return nil
	}

	var entities []string
	for _, raw := range strings.Split(reply, ",") {
		entity := cleanEntity(raw)
		if entity == "" {
			continue
		}
		entities = append(entities, entity)
		if len(entities) >= cfg.MaxSeeds {
			break
		}
	}
	return entities
}
