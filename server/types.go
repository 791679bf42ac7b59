package server

// QueryInput is the body of POST /chat.
type QueryInput struct {
	Question  string `json:"question"`
	RAGType   string `json:"rag_type"`
	SessionID string `json:"session_id"`
}

// ResponseChunk is one server-sent event of the answer stream. The final
// chunk of a completed answer carries an empty token. Error carries a
// client-safe message when generation fails mid-stream.
type ResponseChunk struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the body of non-streaming error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
