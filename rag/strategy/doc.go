// Package strategy implements the retrieval strategies the service exposes:
// adaptive, fusion and graph. All of them implement rag.Strategy and are
// looked up by name through a Registry.
//
// Strategies degrade rather than fail: when a store or an auxiliary model
// call errors out, retrieval returns whatever evidence it could gather (often
// none) and generation still runs on the conversation alone.
package strategy
