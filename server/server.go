// Package server exposes the retrieval service over HTTP. Answers stream as
// server-sent events; conversation histories live in a session.Store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
	"github.com/smallnest/ragserve/rag/strategy"
	"github.com/smallnest/ragserve/session"
)

// Server handles the chat, health and session endpoints.
type Server struct {
	registry *strategy.Registry
	sessions session.Store
	locks    *session.KeyedMutex
}

// New creates a Server over a strategy registry and a session store.
func New(registry *strategy.Registry, sessions session.Store) *Server {
	return &Server{
		registry: registry,
		sessions: sessions,
		locks:    session.NewKeyedMutex(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete session %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var input QueryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Question == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	// Strategy lookup runs before any retrieval so unknown names fail fast.
	strat, err := s.registry.Get(input.RAGType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// One request at a time per session keeps history appends ordered.
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	ctx := r.Context()

	history, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Warn("failed to load session %s, starting fresh: %v", sessionID, err)
		history = rag.History{}
	}

	// New conversations open with the generation system prompt, persisted
	// with the first turn.
	var seed rag.History
	if len(history) == 0 {
		seed = rag.History{{Role: rag.RoleSystem, Content: rag.GenerationSystemPrompt}}
		history = seed.Clone()
	}

	evidence, err := strat.Retrieve(ctx, input.Question, history)
	if err != nil {
		log.Warn("retrieval failed for session %s, generating without evidence: %v", sessionID, err)
		evidence = nil
	}

	answer, ok := s.streamAnswer(ctx, w, strat, input.Question, evidence, history, sessionID)
	if !ok {
		return
	}

	turns := append(seed, rag.Message{Role: rag.RoleUser, Content: input.Question},
		rag.Message{Role: rag.RoleAssistant, Content: answer})
	if err := s.sessions.Append(context.WithoutCancel(ctx), sessionID, turns...); err != nil {
		log.Error("failed to persist session %s: %v", sessionID, err)
	}
}

// streamAnswer runs generation and streams the tokens as SSE chunks. A
// context-length failure before the first token triggers one retry with a
// truncated prompt. The answer text and true are returned only when the
// stream finished cleanly, meaning the exchange may be appended to history.
func (s *Server) streamAnswer(ctx context.Context, w http.ResponseWriter, strat rag.Strategy, question string, evidence rag.RetrievalResult, history rag.History, sessionID string) (string, bool) {
	events, err := strat.Generate(ctx, question, evidence, history)
	if err == nil {
		// A context-length error may also surface as the first event.
		var first rag.StreamEvent
		var alive bool
		first, alive, err = peek(ctx, events)
		if err == nil {
			return s.relay(ctx, w, first, alive, events, sessionID)
		}
	}

	if errors.Is(err, rag.ErrContextTooLong) {
		log.Warn("prompt too long for session %s, retrying truncated", sessionID)
		history, evidence = truncate(history, evidence)
		events, err = strat.Generate(ctx, question, evidence, history)
		if err == nil {
			var first rag.StreamEvent
			var alive bool
			first, alive, err = peek(ctx, events)
			if err == nil {
				return s.relay(ctx, w, first, alive, events, sessionID)
			}
		}
	}

	log.Error("generation failed for session %s: %v", sessionID, err)
	writeError(w, http.StatusBadGateway, "generation backend unavailable")
	return "", false
}

// peek reads the first event so pre-stream failures can still produce a
// proper HTTP error status.
func peek(ctx context.Context, events <-chan rag.StreamEvent) (rag.StreamEvent, bool, error) {
	select {
	case ev, alive := <-events:
		if ev.Err != nil {
			return rag.StreamEvent{}, false, ev.Err
		}
		return ev, alive, nil
	case <-ctx.Done():
		return rag.StreamEvent{}, false, ctx.Err()
	}
}

// relay streams the first event and the rest of the channel as SSE chunks,
// ending with an empty-token chunk on clean completion.
func (s *Server) relay(ctx context.Context, w http.ResponseWriter, first rag.StreamEvent, alive bool, events <-chan rag.StreamEvent, sessionID string) (string, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	var answer []byte

	emit := func(chunk ResponseChunk) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if alive && first.Token != "" {
		answer = append(answer, first.Token...)
		emit(ResponseChunk{Token: first.Token, SessionID: sessionID})
	}
	if !alive {
		emit(ResponseChunk{Token: "", SessionID: sessionID})
		return string(answer), true
	}

	for {
		select {
		case <-ctx.Done():
			// Client went away; drop the partial exchange.
			return "", false
		case ev, ok := <-events:
			if !ok {
				emit(ResponseChunk{Token: "", SessionID: sessionID})
				return string(answer), true
			}
			if ev.Err != nil {
				log.Error("stream failed for session %s: %v", sessionID, ev.Err)
				emit(ResponseChunk{SessionID: sessionID, Error: "generation interrupted"})
				return "", false
			}
			if ev.Token == "" {
				continue
			}
			answer = append(answer, ev.Token...)
			emit(ResponseChunk{Token: ev.Token, SessionID: sessionID})
		}
	}
}

// truncate halves what the retry sends: the oldest non-system turns and the
// lower-ranked half of the evidence are dropped.
func truncate(history rag.History, evidence rag.RetrievalResult) (rag.History, rag.RetrievalResult) {
	var system rag.History
	var turns rag.History
	for _, msg := range history {
		if msg.Role == rag.RoleSystem {
			system = append(system, msg)
		} else {
			turns = append(turns, msg)
		}
	}
	turns = turns[len(turns)/2:]

	trimmed := append(system, turns...)
	return trimmed, evidence[:len(evidence)/2]
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
