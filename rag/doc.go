// Package rag defines the core types and contracts of the retrieval-augmented
// generation service: chat messages and histories, retrieved evidence, the
// Strategy interface implemented by the adaptive/fusion/graph strategies, and
// the store and completion-client interfaces they depend on.
//
// The package is dependency-light on purpose. Concrete stores live in
// rag/store, strategies in rag/strategy, and completion clients in the llm
// package; all of them speak the types declared here.
package rag // import "github.com/smallnest/ragserve/rag"
