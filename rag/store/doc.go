// Package store provides the evidence stores behind the retrieval strategies:
// unstructured (lexical/vector passage search) and graph (entity traversal).
//
// Unstructured backends:
//
//   - MemoryIndex: in-process index for tests and development
//   - RediSearch: RediSearch FT.SEARCH (lexical) and KNN vector search
//   - LangChainStore: adapter over any langchaingo vectorstores.VectorStore
//
// Graph backends:
//
//   - MemoryGraph: in-process knowledge graph
//   - FalkorGraph: FalkorDB GRAPH.QUERY over the redis protocol
package store // import "github.com/smallnest/ragserve/rag/store"
