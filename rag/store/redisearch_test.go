package store

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragserve/rag"
)

func TestEncodeVector(t *testing.T) {
	blob := encodeVector([]float32{1.5, -2.0})
	require.Len(t, blob, 8)

	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32([]byte(blob)[0:4])))
	assert.Equal(t, float32(-2.0), math.Float32frombits(binary.LittleEndian.Uint32([]byte(blob)[4:8])))
}

func TestEscapeQueryText(t *testing.T) {
	assert.Equal(t, "hello world", escapeQueryText("hello, world!"))
	assert.Equal(t, "a-b c_d", escapeQueryText("a-b @c_d"))
	assert.Equal(t, "", escapeQueryText("(*|%)"))
	assert.Equal(t, "", escapeQueryText(""))
}

func TestParseSearchReplyWithScores(t *testing.T) {
	reply := []any{
		int64(2),
		"ragserve:doc:go", "1.5", []any{"content", "Go is a language"},
		"ragserve:doc:redis", "0.7", []any{"content", "Redis is a store"},
	}

	items, err := parseSearchReply(reply, "ragserve:doc:", rag.OriginLexical, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "go", items[0].Source)
	assert.Equal(t, "Go is a language", items[0].Content)
	assert.Equal(t, rag.OriginLexical, items[0].Origin)
	assert.Equal(t, 1.5, items[0].Score)
	assert.Equal(t, "redis", items[1].Source)
}

func TestParseSearchReplyVectorScore(t *testing.T) {
	reply := []any{
		int64(1),
		"ragserve:doc:go", []any{"content", "Go is a language", "vector_score", "0.25"},
	}

	items, err := parseSearchReply(reply, "ragserve:doc:", rag.OriginSemantic, "vector_score")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, rag.OriginSemantic, items[0].Origin)
	// Cosine distance 0.25 becomes similarity 0.75.
	assert.InDelta(t, 0.75, items[0].Score, 1e-9)
}

func TestParseSearchReplyRESP3WithScores(t *testing.T) {
	// go-redis v9 defaults to RESP3, under which FT.SEARCH replies as a map.
	reply := map[any]any{
		"total_results": int64(2),
		"format":        "STRING",
		"results": []any{
			map[any]any{
				"id":               "ragserve:doc:go",
				"score":            1.5,
				"extra_attributes": map[any]any{"content": "Go is a language"},
			},
			map[any]any{
				"id":               "ragserve:doc:redis",
				"score":            "0.7",
				"extra_attributes": map[any]any{"content": "Redis is a store"},
			},
		},
	}

	items, err := parseSearchReply(reply, "ragserve:doc:", rag.OriginLexical, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "go", items[0].Source)
	assert.Equal(t, "Go is a language", items[0].Content)
	assert.Equal(t, 1.5, items[0].Score)
	assert.Equal(t, "redis", items[1].Source)
	assert.Equal(t, 0.7, items[1].Score)
}

func TestParseSearchReplyRESP3VectorScore(t *testing.T) {
	reply := map[any]any{
		"total_results": int64(1),
		"results": []any{
			map[any]any{
				"id": "ragserve:doc:go",
				"extra_attributes": map[any]any{
					"content":      "Go is a language",
					"vector_score": "0.25",
				},
			},
		},
	}

	items, err := parseSearchReply(reply, "ragserve:doc:", rag.OriginSemantic, "vector_score")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "go", items[0].Source)
	assert.InDelta(t, 0.75, items[0].Score, 1e-9)
}

func TestParseSearchReplyRESP3Empty(t *testing.T) {
	items, err := parseSearchReply(map[any]any{"total_results": int64(0), "results": []any{}},
		"ragserve:doc:", rag.OriginLexical, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseSearchReplyEmpty(t *testing.T) {
	items, err := parseSearchReply([]any{int64(0)}, "ragserve:doc:", rag.OriginLexical, "")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = parseSearchReply("garbage", "ragserve:doc:", rag.OriginLexical, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}
