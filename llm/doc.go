// Package llm provides completion clients for OpenAI-compatible endpoints,
// including self-hosted servers such as vLLM, plus an adapter for langchaingo
// models. All clients implement rag.CompletionClient.
package llm
