package store

import (
	"context"
	"strings"
	"sync"

	"github.com/smallnest/ragserve/rag"
)

// mentionsRelation links extracted entities back to their source documents
// during indexing. Traversals skip it: provenance edges are not facts.
const mentionsRelation = "MENTIONS"

const (
	defaultSeedLimit = 4
	defaultFactLimit = 50
)

// GraphOptions bound how much of the graph a traversal may touch. The limits
// mirror the seed and row caps of the original indexing pipeline's queries.
type GraphOptions struct {
	SeedLimit int // matched nodes per seed entity, default 4
	FactLimit int // total facts per traversal, default 50
}

func (o GraphOptions) withDefaults() GraphOptions {
	if o.SeedLimit <= 0 {
		o.SeedLimit = defaultSeedLimit
	}
	if o.FactLimit <= 0 {
		o.FactLimit = defaultFactLimit
	}
	return o
}

// MemoryGraph is an in-process knowledge graph. Seeds match nodes by
// case-insensitive substring on the node id; traversal walks both edge
// directions breadth-first up to the requested depth.
type MemoryGraph struct {
	mu   sync.RWMutex
	out  map[string][]rag.Fact
	in   map[string][]rag.Fact
	ids  []string
	opts GraphOptions
}

// NewMemoryGraph creates an empty MemoryGraph.
func NewMemoryGraph(opts GraphOptions) *MemoryGraph {
	return &MemoryGraph{
		out:  make(map[string][]rag.Fact),
		in:   make(map[string][]rag.Fact),
		opts: opts.withDefaults(),
	}
}

// AddFact records one edge. Unknown nodes are created implicitly.
func (g *MemoryGraph) AddFact(ctx context.Context, f rag.Fact) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{f.Subject, f.Object} {
		if _, ok := g.out[id]; !ok {
			g.out[id] = nil
			g.in[id] = nil
			g.ids = append(g.ids, id)
		}
	}
	g.out[f.Subject] = append(g.out[f.Subject], f)
	g.in[f.Object] = append(g.in[f.Object], f)
	return nil
}

// Traverse implements rag.GraphStore.
func (g *MemoryGraph) Traverse(ctx context.Context, seeds []string, depth int) (*rag.Subgraph, error) {
	if depth <= 0 {
		depth = 1
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	sub := &rag.Subgraph{}
	seenFacts := make(map[rag.Fact]bool)

	for _, seed := range seeds {
		frontier := g.matchNodes(seed)

		for hop := 0; hop < depth && len(frontier) > 0; hop++ {
			next := make([]string, 0)
			for _, node := range frontier {
				for _, f := range g.out[node] {
					if f.Relation == mentionsRelation || seenFacts[f] {
						continue
					}
					if len(sub.Facts) >= g.opts.FactLimit {
						return sub, nil
					}
					seenFacts[f] = true
					sub.Facts = append(sub.Facts, f)
					next = append(next, f.Object)
				}
				for _, f := range g.in[node] {
					if f.Relation == mentionsRelation || seenFacts[f] {
						continue
					}
					if len(sub.Facts) >= g.opts.FactLimit {
						return sub, nil
					}
					seenFacts[f] = true
					sub.Facts = append(sub.Facts, f)
					next = append(next, f.Subject)
				}
			}
			frontier = next
		}
	}

	return sub, nil
}

// matchNodes finds node ids containing the seed, case-insensitively, capped
// by the seed limit.
func (g *MemoryGraph) matchNodes(seed string) []string {
	needle := strings.ToLower(strings.TrimSpace(seed))
	if needle == "" {
		return nil
	}

	matched := make([]string, 0, g.opts.SeedLimit)
	for _, id := range g.ids {
		if strings.Contains(strings.ToLower(id), needle) {
			matched = append(matched, id)
			if len(matched) >= g.opts.SeedLimit {
				break
			}
		}
	}
	return matched
}
