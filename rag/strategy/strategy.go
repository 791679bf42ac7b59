package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/ragserve/rag"
)

// Strategy names accepted by Registry.Get.
const (
	NameAdaptive = "adaptive"
	NameFusion   = "fusion"
	NameGraph    = "graph"
)

// Config tunes retrieval across all strategies. The zero value is usable;
// every field has a default.
type Config struct {
	// TopK is the number of evidence items a search returns. Default 5.
	TopK int
	// GraphDepth is the number of hops walked from each seed entity.
	// Default 1.
	GraphDepth int
	// MaxSeeds caps the entities extracted from a query. Default 4.
	MaxSeeds int
	// RRFConstant is the k of reciprocal rank fusion.
	// Default rag.DefaultRRFConstant.
	RRFConstant float64
	// MaxTokens bounds answer generation. Default 500.
	MaxTokens int
	// ClassifierMaxTokens bounds the classifier call. The label is a single
	// word. Default 5.
	ClassifierMaxTokens int
	// EntityMaxTokens bounds the entity extraction call. Default 50.
	EntityMaxTokens int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.GraphDepth <= 0 {
		c.GraphDepth = 1
	}
	if c.MaxSeeds <= 0 {
		c.MaxSeeds = 4
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = rag.DefaultRRFConstant
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.ClassifierMaxTokens <= 0 {
		c.ClassifierMaxTokens = 5
	}
	if c.EntityMaxTokens <= 0 {
		c.EntityMaxTokens = 50
	}
	return c
}

// Deps holds the backends a strategy draws on. LLM is required; stores may
// be nil when a deployment does not run that backend, in which case the
// strategies that need them retrieve nothing from the missing store.
type Deps struct {
	Unstructured rag.UnstructuredStore
	Graph        rag.GraphStore
	LLM          rag.CompletionClient
	Config       Config
}

// Registry maps strategy names to instances.
type Registry struct {
	strategies map[string]rag.Strategy
}

// NewRegistry builds a registry with the three standard strategies.
func NewRegistry(deps Deps) *Registry {
	deps.Config = deps.Config.withDefaults()
	return &Registry{
		strategies: map[string]rag.Strategy{
			NameAdaptive: NewAdaptive(deps),
			NameFusion:   NewFusion(deps),
			NameGraph:    NewGraph(deps),
		},
	}
}

// Get looks up a strategy by name, case-insensitively. Unknown names return
// rag.ErrUnknownStrategy.
func (r *Registry) Get(name string) (rag.Strategy, error) {
	s, ok := r.strategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)",
			rag.ErrUnknownStrategy, name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
