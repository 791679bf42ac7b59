package strategy

import (
	"context"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/ragserve/rag"
)

// sanitizer strips residual markup from indexed passages before they enter
// the prompt. Passages often come from scraped pages and may still carry
// tags.
var sanitizer = bluemonday.StrictPolicy()

// buildContext renders evidence into the context block of the generation
// prompt. Text passages are sanitized and blank-line separated; graph facts
// are already plain strings and go on their own lines.
func buildContext(evidence rag.RetrievalResult) string {
	if len(evidence) == 0 {
		return ""
	}

	parts := make([]string, 0, len(evidence))
	for _, item := range evidence {
		content := item.Content
		if item.Origin != rag.OriginGraph {
			content = html.UnescapeString(sanitizer.Sanitize(content))
		}
		content = strings.TrimSpace(content)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// generate runs the shared generation flow: render the evidence into the
// prompt, append it as the final user turn and stream the completion. The
// history is cloned so the caller's copy stays untouched.
func generate(ctx context.Context, llm rag.CompletionClient, cfg Config, query string, evidence rag.RetrievalResult, history rag.History) (<-chan rag.StreamEvent, error) {
	msgs := history.Clone()
	msgs = append(msgs, rag.Message{
		Role:    rag.RoleUser,
		Content: rag.RenderGenerationPrompt(query, buildContext(evidence)),
	})
	return llm.Stream(ctx, msgs, cfg.MaxTokens)
}
