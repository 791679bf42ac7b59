package strategy

import (
	"context"
	"strings"
	"sync"

	"github.com/smallnest/ragserve/rag"
)

// scriptedLLM answers Complete calls from a script keyed by a substring of
// the system prompt and streams a fixed answer. It records every call.
type scriptedLLM struct {
	mu sync.Mutex

	classifierReply string
	classifierErr   error
	entityReply     string
	entityErr       error
	streamTokens    []string
	streamErr       error

	completeCalls []string // system prompts, in call order
	streamCalls   int
	lastMessages  []rag.Message
}

func (s *scriptedLLM) Complete(ctx context.Context, msgs []rag.Message, maxTokens int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	system := msgs[0].Content
	s.completeCalls = append(s.completeCalls, system)

	switch {
	case strings.Contains(system, "classifying queries"):
		return s.classifierReply, s.classifierErr
	case strings.Contains(system, "extracting entities"):
		return s.entityReply, s.entityErr
	default:
		return "", nil
	}
}

func (s *scriptedLLM) Stream(ctx context.Context, msgs []rag.Message, maxTokens int) (<-chan rag.StreamEvent, error) {
	s.mu.Lock()
	s.streamCalls++
	s.lastMessages = msgs
	tokens := s.streamTokens
	err := s.streamErr
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	events := make(chan rag.StreamEvent, len(tokens))
	for _, token := range tokens {
		events <- rag.StreamEvent{Token: token}
	}
	close(events)
	return events, nil
}

// recordingStore returns canned evidence per mode and records which modes
// were searched.
type recordingStore struct {
	mu      sync.Mutex
	results map[rag.SearchMode][]rag.EvidenceItem
	errs    map[rag.SearchMode]error
	modes   []rag.SearchMode
}

func (r *recordingStore) Search(ctx context.Context, query string, k int, mode rag.SearchMode) ([]rag.EvidenceItem, error) {
	r.mu.Lock()
	r.modes = append(r.modes, mode)
	r.mu.Unlock()

	if err := r.errs[mode]; err != nil {
		return nil, err
	}
	return r.results[mode], nil
}

func (r *recordingStore) searchedModes() []rag.SearchMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rag.SearchMode(nil), r.modes...)
}

// recordingGraph returns a canned subgraph and records traversal calls.
type recordingGraph struct {
	mu    sync.Mutex
	sub   *rag.Subgraph
	err   error
	seeds [][]string
	depth int
}

func (r *recordingGraph) Traverse(ctx context.Context, seeds []string, depth int) (*rag.Subgraph, error) {
	r.mu.Lock()
	r.seeds = append(r.seeds, seeds)
	r.depth = depth
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.sub == nil {
		return &rag.Subgraph{}, nil
	}
	return r.sub, nil
}

func (r *recordingGraph) traversals() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.seeds...)
}

func evidence(source string, origin rag.Origin) rag.EvidenceItem {
	return rag.EvidenceItem{Source: source, Content: "content of " + source, Origin: origin, Score: 1.0}
}

func collect(events <-chan rag.StreamEvent) (string, error) {
	var sb strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return sb.String(), ev.Err
		}
		sb.WriteString(ev.Token)
	}
	return sb.String(), nil
}
