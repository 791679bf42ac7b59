package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/ragserve/rag"
)

const (
	// DefaultModel is the model served by the default vLLM deployment.
	DefaultModel = "casperhansen/llama-3.3-70b-instruct-awq"

	defaultTemperature = 0.1
	defaultTopP        = 0.95
)

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	// BaseURL points at the API root, e.g. "http://localhost:8000/v1" for a
	// local vLLM server. Empty means the official OpenAI endpoint.
	BaseURL string
	// APIKey authenticates requests. Self-hosted servers usually accept any
	// non-empty value.
	APIKey string
	// Model overrides DefaultModel.
	Model string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		config.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Complete implements rag.CompletionClient.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []rag.Message, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(msgs, maxTokens))
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", rag.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements rag.CompletionClient. Tokens arrive on the returned
// channel as they are generated; the channel is closed when the stream ends
// or fails, with a trailing error event in the failure case.
func (c *OpenAIClient) Stream(ctx context.Context, msgs []rag.Message, maxTokens int) (<-chan rag.StreamEvent, error) {
	req := c.request(msgs, maxTokens)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	events := make(chan rag.StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case events <- rag.StreamEvent{Err: mapError(err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			token := resp.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			select {
			case events <- rag.StreamEvent{Token: token}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *OpenAIClient) request(msgs []rag.Message, maxTokens int) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
	}
}

// mapError translates transport and API errors into the package sentinels so
// callers can branch on them without knowing the client library.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isContextLengthError(apiErr) {
			return fmt.Errorf("%w: %s", rag.ErrContextTooLong, apiErr.Message)
		}
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", rag.ErrUpstreamUnavailable, apiErr.Message)
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", rag.ErrUpstreamUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %v", rag.ErrUpstreamUnavailable, err)
	}
	return err
}

func isContextLengthError(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "context length") || strings.Contains(msg, "maximum context")
}
