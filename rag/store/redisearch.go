package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragserve/rag"
)

// RediSearchIndex is a rag.UnstructuredStore backed by a RediSearch index.
// Lexical search uses full-text scoring, semantic search uses a KNN vector
// query, and hybrid fans out to both and fuses by reciprocal rank.
type RediSearchIndex struct {
	client    redis.UniversalClient
	embedder  rag.Embedder
	indexName string
	prefix    string
	rrfK      float64
}

// RediSearchOptions configures a RediSearchIndex.
type RediSearchOptions struct {
	// IndexName is the RediSearch index name. Defaults to "ragserve_idx".
	IndexName string
	// Prefix is the key prefix for passage hashes. Defaults to "ragserve:doc:".
	Prefix string
	// RRFConstant is the k used when fusing hybrid results.
	// Defaults to rag.DefaultRRFConstant.
	RRFConstant float64
}

func (o RediSearchOptions) withDefaults() RediSearchOptions {
	if o.IndexName == "" {
		o.IndexName = "ragserve_idx"
	}
	if o.Prefix == "" {
		o.Prefix = "ragserve:doc:"
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = rag.DefaultRRFConstant
	}
	return o
}

// NewRediSearchIndex creates a RediSearchIndex over an existing client. The
// embedder may be nil, in which case semantic and hybrid searches return
// rag.ErrUnsupportedMode.
func NewRediSearchIndex(client redis.UniversalClient, embedder rag.Embedder, opts RediSearchOptions) *RediSearchIndex {
	opts = opts.withDefaults()
	return &RediSearchIndex{
		client:    client,
		embedder:  embedder,
		indexName: opts.IndexName,
		prefix:    opts.Prefix,
		rrfK:      opts.RRFConstant,
	}
}

// EnsureIndex creates the index if it does not exist yet.
func (r *RediSearchIndex) EnsureIndex(ctx context.Context) error {
	args := []any{
		"FT.CREATE", r.indexName,
		"ON", "HASH",
		"PREFIX", "1", r.prefix,
		"SCHEMA",
		"content", "TEXT",
	}
	if r.embedder != nil {
		args = append(args,
			"embedding", "VECTOR", "FLAT", "6",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(r.embedder.GetDimension()),
			"DISTANCE_METRIC", "COSINE",
		)
	}

	if err := r.client.Do(ctx, args...).Err(); err != nil {
		if strings.Contains(err.Error(), "Index already exists") {
			return nil
		}
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Add stores passages as hashes under the index prefix, embedding them when
// an embedder is configured.
func (r *RediSearchIndex) Add(ctx context.Context, passages ...rag.Passage) error {
	var vectors [][]float32
	if r.embedder != nil {
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Content
		}
		var err error
		vectors, err = r.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed passages: %w", err)
		}
	}

	for i, p := range passages {
		key := r.prefix + p.ID
		fields := []any{"content", p.Content}
		if vectors != nil {
			fields = append(fields, "embedding", encodeVector(vectors[i]))
		}
		if err := r.client.HSet(ctx, key, fields...).Err(); err != nil {
			return fmt.Errorf("failed to store passage %s: %w", p.ID, err)
		}
	}
	return nil
}

// Search implements rag.UnstructuredStore.
func (r *RediSearchIndex) Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.EvidenceItem, error) {
	if k <= 0 {
		k = 5
	}

	switch mode {
	case rag.SearchLexical:
		return r.searchLexical(ctx, query, k)
	case rag.SearchSemantic:
		return r.searchSemantic(ctx, query, k)
	case rag.SearchHybrid:
		if r.embedder == nil {
			return nil, fmt.Errorf("%w: hybrid search requires an embedder", rag.ErrUnsupportedMode)
		}
		lexical, err := r.searchLexical(ctx, query, k)
		if err != nil {
			return nil, err
		}
		semantic, err := r.searchSemantic(ctx, query, k)
		if err != nil {
			return nil, err
		}
		return rag.FuseByReciprocalRank(r.rrfK, k, lexical, semantic), nil
	default:
		return nil, fmt.Errorf("%w: %q", rag.ErrUnsupportedMode, mode)
	}
}

func (r *RediSearchIndex) searchLexical(ctx context.Context, query string, k int) ([]rag.EvidenceItem, error) {
	escaped := escapeQueryText(query)
	if escaped == "" {
		return nil, nil
	}

	reply, err := r.client.Do(ctx,
		"FT.SEARCH", r.indexName, escaped,
		"WITHSCORES",
		"RETURN", "1", "content",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	return parseSearchReply(reply, r.prefix, rag.OriginLexical, "")
}

func (r *RediSearchIndex) searchSemantic(ctx context.Context, query string, k int) ([]rag.EvidenceItem, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: semantic search requires an embedder", rag.ErrUnsupportedMode)
	}

	vector, err := r.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	knn := fmt.Sprintf("*=>[KNN %d @embedding $vec AS vector_score]", k)
	reply, err := r.client.Do(ctx,
		"FT.SEARCH", r.indexName, knn,
		"PARAMS", "2", "vec", encodeVector(vector),
		"RETURN", "2", "content", "vector_score",
		"SORTBY", "vector_score",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	return parseSearchReply(reply, r.prefix, rag.OriginSemantic, "vector_score")
}

// parseSearchReply converts an FT.SEARCH reply into evidence items. Under
// RESP2 the reply is [total, key1, (score1,) fields1, key2, ...] with fields
// as alternating name/value pairs; under RESP3 (the go-redis v9 default) it
// is a map with a "results" list of per-document maps. Both shapes are
// handled. When scoreField is set the score is read from that field as a
// cosine distance and converted to a similarity; otherwise the WITHSCORES
// value next to each key is used directly.
func parseSearchReply(reply any, prefix string, origin rag.Origin, scoreField string) ([]rag.EvidenceItem, error) {
	if m, ok := toStringMap(reply); ok {
		return parseSearchMap(m, prefix, origin, scoreField), nil
	}

	top, ok := reply.([]any)
	if !ok || len(top) < 1 {
		return nil, nil
	}

	withScores := scoreField == ""
	var items []rag.EvidenceItem

	i := 1
	for i < len(top) {
		key, ok := top[i].(string)
		if !ok {
			break
		}
		i++

		var score float64
		if withScores && i < len(top) {
			score, _ = toFloat(top[i])
			i++
		}

		if i >= len(top) {
			break
		}
		fields, ok := top[i].([]any)
		i++
		if !ok {
			continue
		}

		item := rag.EvidenceItem{
			Source: strings.TrimPrefix(key, prefix),
			Origin: origin,
			Score:  score,
		}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			switch name {
			case "content":
				item.Content, _ = fields[j+1].(string)
			case scoreField:
				if dist, err := toFloat(fields[j+1]); err == nil {
					item.Score = 1 - dist
				}
			}
		}
		items = append(items, item)
	}

	return items, nil
}

// parseSearchMap handles the RESP3 shape: {"total_results": n, "results":
// [{"id": key, "score": s, "extra_attributes": {field: value, ...}}, ...]}.
func parseSearchMap(m map[string]any, prefix string, origin rag.Origin, scoreField string) []rag.EvidenceItem {
	results, _ := m["results"].([]any)

	var items []rag.EvidenceItem
	for _, raw := range results {
		doc, ok := toStringMap(raw)
		if !ok {
			continue
		}
		key, ok := doc["id"].(string)
		if !ok {
			continue
		}

		item := rag.EvidenceItem{
			Source: strings.TrimPrefix(key, prefix),
			Origin: origin,
		}
		if scoreField == "" {
			if score, err := toFloat(doc["score"]); err == nil {
				item.Score = score
			}
		}

		attrs, _ := toStringMap(doc["extra_attributes"])
		if content, ok := attrs["content"].(string); ok {
			item.Content = content
		}
		if scoreField != "" {
			if dist, err := toFloat(attrs[scoreField]); err == nil {
				item.Score = 1 - dist
			}
		}
		items = append(items, item)
	}
	return items
}

// toStringMap normalizes the two map types go-redis may decode a RESP3 map
// into.
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// encodeVector packs a float32 slice into the little-endian byte blob
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(vector []float32) string {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

// escapeQueryText keeps only word characters so user input cannot inject
// RediSearch query syntax.
func escapeQueryText(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if r == '_' || r == '-' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r > 127 {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			terms = append(terms, b.String())
		}
	}
	return strings.Join(terms, " ")
}
