package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragserve/rag"
)

// FalkorGraph is a rag.GraphStore backed by FalkorDB, queried over the redis
// protocol with GRAPH.QUERY.
type FalkorGraph struct {
	client    redis.UniversalClient
	graphName string
	opts      GraphOptions
}

// NewFalkorGraph creates a FalkorGraph from a connection string of the form
// falkordb://host:port/graph_name.
func NewFalkorGraph(connectionString string, opts GraphOptions) (*FalkorGraph, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "ragserve"
	}

	// GRAPH.QUERY reply parsing expects the RESP2 array shape; go-redis v9
	// negotiates RESP3 unless pinned.
	client := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2})

	return &FalkorGraph{
		client:    client,
		graphName: graphName,
		opts:      opts.withDefaults(),
	}, nil
}

// NewFalkorGraphWithClient creates a FalkorGraph over an existing client.
// Useful for testing and for sharing a connection with other redis users.
func NewFalkorGraphWithClient(client redis.UniversalClient, graphName string, opts GraphOptions) *FalkorGraph {
	return &FalkorGraph{
		client:    client,
		graphName: graphName,
		opts:      opts.withDefaults(),
	}
}

// AddFact merges one edge into the graph.
func (f *FalkorGraph) AddFact(ctx context.Context, fact rag.Fact) error {
	query := fmt.Sprintf(
		"MERGE (a:Entity {id: '%s'}) MERGE (b:Entity {id: '%s'}) MERGE (a)-[:%s]->(b)",
		escapeCypherString(fact.Subject),
		escapeCypherString(fact.Object),
		sanitizeRelation(fact.Relation),
	)
	_, err := f.query(ctx, query)
	return err
}

// Traverse implements rag.GraphStore. Each hop matches one edge in each
// direction; the frontier of the next hop is the set of neighbors reached,
// matched by exact id.
func (f *FalkorGraph) Traverse(ctx context.Context, seeds []string, depth int) (*rag.Subgraph, error) {
	if depth <= 0 {
		depth = 1
	}

	sub := &rag.Subgraph{}
	seenFacts := make(map[rag.Fact]bool)

	for _, seed := range seeds {
		frontier, err := f.matchSeeds(ctx, seed)
		if err != nil {
			return nil, err
		}

		for hop := 0; hop < depth && len(frontier) > 0; hop++ {
			facts, neighbors, err := f.expand(ctx, frontier)
			if err != nil {
				return nil, err
			}

			for _, fact := range facts {
				if seenFacts[fact] {
					continue
				}
				if len(sub.Facts) >= f.opts.FactLimit {
					return sub, nil
				}
				seenFacts[fact] = true
				sub.Facts = append(sub.Facts, fact)
			}
			frontier = neighbors
		}
	}

	return sub, nil
}

// matchSeeds finds node ids containing the seed, case-insensitively.
func (f *FalkorGraph) matchSeeds(ctx context.Context, seed string) ([]string, error) {
	needle := strings.ToLower(strings.TrimSpace(seed))
	if needle == "" {
		return nil, nil
	}

	query := fmt.Sprintf(
		"MATCH (node) WHERE toLower(node.id) CONTAINS '%s' RETURN node.id LIMIT %d",
		escapeCypherString(needle), f.opts.SeedLimit,
	)
	rows, err := f.query(ctx, query)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			ids = append(ids, row[0])
		}
	}
	return ids, nil
}

// expand fetches the facts of one hop around the frontier nodes, in both
// edge directions, skipping provenance edges.
func (f *FalkorGraph) expand(ctx context.Context, frontier []string) ([]rag.Fact, []string, error) {
	idList := make([]string, len(frontier))
	for i, id := range frontier {
		idList[i] = "'" + escapeCypherString(id) + "'"
	}
	in := strings.Join(idList, ", ")

	outgoing := fmt.Sprintf(
		"MATCH (node)-[r]->(neighbor) WHERE node.id IN [%s] AND type(r) <> '%s' RETURN node.id, type(r), neighbor.id LIMIT %d",
		in, mentionsRelation, f.opts.FactLimit,
	)
	incoming := fmt.Sprintf(
		"MATCH (node)<-[r]-(neighbor) WHERE node.id IN [%s] AND type(r) <> '%s' RETURN neighbor.id, type(r), node.id LIMIT %d",
		in, mentionsRelation, f.opts.FactLimit,
	)

	var facts []rag.Fact
	var neighbors []string

	for i, q := range []string{outgoing, incoming} {
		rows, err := f.query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			if len(row) < 3 {
				continue
			}
			facts = append(facts, rag.Fact{Subject: row[0], Relation: row[1], Object: row[2]})
			if i == 0 {
				neighbors = append(neighbors, row[2])
			} else {
				neighbors = append(neighbors, row[0])
			}
		}
	}

	return facts, neighbors, nil
}

// query runs a GRAPH.QUERY and flattens the reply into string rows.
func (f *FalkorGraph) query(ctx context.Context, cypher string) ([][]string, error) {
	reply, err := f.client.Do(ctx, "GRAPH.QUERY", f.graphName, cypher).Result()
	if err != nil {
		return nil, fmt.Errorf("graph query failed: %w", err)
	}
	return parseGraphReply(reply), nil
}

// parseGraphReply extracts the data section of a GRAPH.QUERY reply. The reply
// is [header, rows, statistics]; every scalar is rendered as a string.
func parseGraphReply(reply any) [][]string {
	top, ok := reply.([]any)
	if !ok || len(top) < 2 {
		return nil
	}

	data, ok := top[1].([]any)
	if !ok {
		return nil
	}

	rows := make([][]string, 0, len(data))
	for _, raw := range data {
		cols, ok := raw.([]any)
		if !ok {
			continue
		}
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = fmt.Sprintf("%v", col)
		}
		rows = append(rows, row)
	}
	return rows
}

// escapeCypherString escapes quotes and backslashes for inline Cypher string
// literals.
func escapeCypherString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// sanitizeRelation restricts relation types to identifier-safe characters.
func sanitizeRelation(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else if r == ' ' || r == '-' {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}
