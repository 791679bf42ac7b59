package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragserve/rag"
	"github.com/smallnest/ragserve/rag/strategy"
	"github.com/smallnest/ragserve/session"
)

// fakeLLM scripts one behavior per Stream call, in order. Complete answers
// classifier and extraction calls with canned strings.
type fakeLLM struct {
	mu      sync.Mutex
	streams []func(ctx context.Context) <-chan rag.StreamEvent
	calls   int
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []rag.Message, maxTokens int) (string, error) {
	return "relevant", nil
}

func (f *fakeLLM) Stream(ctx context.Context, msgs []rag.Message, maxTokens int) (<-chan rag.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.streams) {
		return nil, fmt.Errorf("unexpected stream call %d", f.calls)
	}
	fn := f.streams[f.calls]
	f.calls++
	return fn(ctx), nil
}

func (f *fakeLLM) streamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// tokens returns a stream behavior that emits the given tokens and closes.
func tokens(tokens ...string) func(ctx context.Context) <-chan rag.StreamEvent {
	return func(ctx context.Context) <-chan rag.StreamEvent {
		ch := make(chan rag.StreamEvent, len(tokens))
		for _, token := range tokens {
			ch <- rag.StreamEvent{Token: token}
		}
		close(ch)
		return ch
	}
}

// failWith returns a stream behavior whose events end in an error.
func failWith(err error, before ...string) func(ctx context.Context) <-chan rag.StreamEvent {
	return func(ctx context.Context) <-chan rag.StreamEvent {
		ch := make(chan rag.StreamEvent, len(before)+1)
		for _, token := range before {
			ch <- rag.StreamEvent{Token: token}
		}
		ch <- rag.StreamEvent{Err: err}
		close(ch)
		return ch
	}
}

type chatEnv struct {
	server *httptest.Server
	store  *session.MemoryStore
	llm    *fakeLLM
}

func newChatEnv(t *testing.T, llm *fakeLLM) *chatEnv {
	t.Helper()
	store := session.NewMemoryStore(0)
	t.Cleanup(store.Close)

	registry := strategy.NewRegistry(strategy.Deps{LLM: llm})
	srv := httptest.NewServer(New(registry, store).Handler())
	t.Cleanup(srv.Close)

	return &chatEnv{server: srv, store: store, llm: llm}
}

func (e *chatEnv) chat(t *testing.T, input QueryInput) (*http.Response, []ResponseChunk) {
	t.Helper()
	body, err := json.Marshal(input)
	require.NoError(t, err)

	resp, err := http.Post(e.server.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	return resp, readChunks(t, resp)
}

func readChunks(t *testing.T, resp *http.Response) []ResponseChunk {
	t.Helper()
	var chunks []ResponseChunk
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk ResponseChunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk))
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChatStreamsTokens(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		tokens("The ", "answer."),
	}})

	resp, chunks := env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Len(t, chunks, 3)
	assert.Equal(t, "The ", chunks[0].Token)
	assert.Equal(t, "answer.", chunks[1].Token)
	// Completion is signalled by an empty token.
	assert.Equal(t, "", chunks[2].Token)
	for _, chunk := range chunks {
		assert.Equal(t, "s1", chunk.SessionID)
	}
}

func TestChatMintsSessionID(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		tokens("hi"),
	}})

	_, chunks := env.chat(t, QueryInput{Question: "q", RAGType: "fusion"})
	require.NotEmpty(t, chunks)
	id := chunks[0].SessionID
	assert.NotEmpty(t, id)
	for _, chunk := range chunks {
		assert.Equal(t, id, chunk.SessionID)
	}
}

func TestChatUnknownStrategy(t *testing.T) {
	llm := &fakeLLM{}
	env := newChatEnv(t, llm)

	resp, _ := env.chat(t, QueryInput{Question: "q", RAGType: "magical", SessionID: "s1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "adaptive, fusion, graph")

	// Rejected before any model call or history write.
	assert.Zero(t, llm.streamCalls())
	assert.Zero(t, env.store.Len())
}

func TestChatEmptyQuestion(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{})
	resp, _ := env.chat(t, QueryInput{Question: "", RAGType: "fusion"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatAppendsHistoryPerRoundTrip(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		tokens("first answer"),
		tokens("second answer"),
	}})

	env.chat(t, QueryInput{Question: "first question", RAGType: "fusion", SessionID: "s1"})
	env.chat(t, QueryInput{Question: "second question", RAGType: "fusion", SessionID: "s1"})

	history, err := env.store.Get(context.Background(), "s1")
	require.NoError(t, err)

	// System prompt then two user/assistant pairs.
	require.Len(t, history, 5)
	assert.Equal(t, rag.RoleSystem, history[0].Role)
	assert.Equal(t, "first question", history[1].Content)
	assert.Equal(t, "first answer", history[2].Content)
	assert.Equal(t, "second question", history[3].Content)
	assert.Equal(t, "second answer", history[4].Content)
}

func TestChatMidStreamErrorDropsExchange(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		failWith(rag.ErrUpstreamUnavailable, "partial "),
	}})

	resp, chunks := env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, chunks, 2)
	assert.Equal(t, "partial ", chunks[0].Token)
	assert.NotEmpty(t, chunks[1].Error)

	history, err := env.store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatFailureBeforeFirstTokenIs502(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		failWith(rag.ErrUpstreamUnavailable),
	}})

	resp, _ := env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestChatContextTooLongRetriesOnce(t *testing.T) {
	llm := &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		failWith(rag.ErrContextTooLong),
		tokens("short answer"),
	}}
	env := newChatEnv(t, llm)

	resp, chunks := env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, llm.streamCalls())

	require.Len(t, chunks, 2)
	assert.Equal(t, "short answer", chunks[0].Token)
	assert.Equal(t, "", chunks[1].Token)

	history, err := env.store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestChatContextTooLongTwiceIs502(t *testing.T) {
	llm := &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		failWith(rag.ErrContextTooLong),
		failWith(rag.ErrContextTooLong),
	}}
	env := newChatEnv(t, llm)

	resp, _ := env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 2, llm.streamCalls())
}

func TestChatClientCancelDropsExchange(t *testing.T) {
	release := make(chan struct{})
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		func(ctx context.Context) <-chan rag.StreamEvent {
			ch := make(chan rag.StreamEvent)
			go func() {
				defer close(ch)
				ch <- rag.StreamEvent{Token: "first "}
				select {
				case <-ctx.Done():
				case <-release:
				}
			}()
			return ch
		},
	}})
	defer close(release)

	body, _ := json.Marshal(QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.server.URL+"/chat", bytes.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Read the first chunk, then hang up.
	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	cancel()

	// The dropped exchange never reaches the store.
	assert.Eventually(t, func() bool {
		history, err := env.store.Get(context.Background(), "s1")
		return err == nil && len(history) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{})

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	env := newChatEnv(t, &fakeLLM{streams: []func(context.Context) <-chan rag.StreamEvent{
		tokens("answer"),
	}})

	env.chat(t, QueryInput{Question: "q", RAGType: "fusion", SessionID: "s1"})
	require.Equal(t, 1, env.store.Len())

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/sessions/s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, env.store.Len())
}

func TestTruncateHalvesHistoryAndEvidence(t *testing.T) {
	history := rag.History{
		{Role: rag.RoleSystem, Content: "sys"},
		{Role: rag.RoleUser, Content: "u1"},
		{Role: rag.RoleAssistant, Content: "a1"},
		{Role: rag.RoleUser, Content: "u2"},
		{Role: rag.RoleAssistant, Content: "a2"},
	}
	evidence := rag.RetrievalResult{
		{Source: "a"}, {Source: "b"}, {Source: "c"}, {Source: "d"},
	}

	gotHistory, gotEvidence := truncate(history, evidence)

	// The system prompt survives, the oldest turns go.
	require.Len(t, gotHistory, 3)
	assert.Equal(t, rag.RoleSystem, gotHistory[0].Role)
	assert.Equal(t, "u2", gotHistory[1].Content)
	assert.Equal(t, "a2", gotHistory[2].Content)

	require.Len(t, gotEvidence, 2)
	assert.Equal(t, "a", gotEvidence[0].Source)
}
