package rag

import "errors"

var (
	// ErrUpstreamUnavailable signals that the LLM completion endpoint is
	// unreachable. Terminal for the request.
	ErrUpstreamUnavailable = errors.New("llm upstream unavailable")

	// ErrContextTooLong signals that the composed prompt exceeds the model's
	// context window. The caller truncates history/evidence and retries once.
	ErrContextTooLong = errors.New("prompt exceeds model context window")

	// ErrUnknownStrategy signals an unrecognized rag_type. A client error,
	// rejected before any retrieval work begins.
	ErrUnknownStrategy = errors.New("unknown rag strategy")

	// ErrUnsupportedMode signals an UnstructuredStore that cannot serve the
	// requested search mode. Callers degrade to an empty contribution.
	ErrUnsupportedMode = errors.New("unsupported search mode")
)
