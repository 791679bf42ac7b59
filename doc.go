// RAGServe - Conversational Retrieval-Augmented Generation Service
//
// RAGServe answers questions about a company's public website content (products,
// careers) by retrieving supporting evidence and conditioning an LLM's streamed
// response on it. The interesting part is strategy selection and fusion: given a
// question and chat history, decide which retrieval mechanisms to invoke - none,
// lexical/semantic search, graph traversal, or a fused combination - and assemble
// the evidence into a prompt context for generation.
//
// # Packages
//
//   - rag: core types, strategy and store interfaces, prompts
//   - rag/strategy: AdaptiveRAG, FusionRAG and GraphRAG implementations
//   - rag/store: unstructured (lexical/vector) and graph evidence stores
//   - llm: OpenAI-compatible and langchaingo completion clients
//   - session: keyed chat-history stores (memory, redis, postgres, sqlite)
//   - server: HTTP transport with SSE token streaming
//   - log: pluggable logging
//
// # Quick Start
//
//	store := store.NewMemoryIndex(store.NewMockEmbedder(64))
//	client := llm.NewOpenAIClient(llm.OpenAIOptions{BaseURL: "http://localhost:8000/v1"})
//	reg := strategy.NewRegistry(strategy.Deps{
//		Unstructured: store,
//		LLM:          client,
//	})
//	srv := server.New(reg, session.NewMemoryStore(0))
//	http.ListenAndServe(":8001", srv.Handler())
package ragserve
