package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/ragserve/rag"
)

// LangChainClient adapts a langchaingo model to rag.CompletionClient, so any
// provider langchaingo supports can serve as the generation backend.
type LangChainClient struct {
	model llms.Model
}

// NewLangChainClient wraps a langchaingo model.
func NewLangChainClient(model llms.Model) *LangChainClient {
	return &LangChainClient{model: model}
}

// Complete implements rag.CompletionClient.
func (c *LangChainClient) Complete(ctx context.Context, msgs []rag.Message, maxTokens int) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toContent(msgs), completionOptions(maxTokens)...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", rag.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Content, nil
}

// Stream implements rag.CompletionClient. Chunks are forwarded from the
// model's streaming callback onto the returned channel.
func (c *LangChainClient) Stream(ctx context.Context, msgs []rag.Message, maxTokens int) (<-chan rag.StreamEvent, error) {
	events := make(chan rag.StreamEvent)

	go func() {
		defer close(events)

		opts := append(completionOptions(maxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case events <- rag.StreamEvent{Token: string(chunk)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)

		if _, err := c.model.GenerateContent(ctx, toContent(msgs), opts...); err != nil {
			select {
			case events <- rag.StreamEvent{Err: fmt.Errorf("%w: %v", rag.ErrUpstreamUnavailable, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

func completionOptions(maxTokens int) []llms.CallOption {
	return []llms.CallOption{
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(defaultTemperature),
		llms.WithTopP(defaultTopP),
	}
}

func toContent(msgs []rag.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, len(msgs))
	for i, m := range msgs {
		var role llms.ChatMessageType
		switch m.Role {
		case rag.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case rag.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content[i] = llms.TextParts(role, m.Content)
	}
	return content
}
