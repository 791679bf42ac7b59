package rag

import "fmt"

// GenerationSystemPrompt is the assistant persona seeded into every new
// session history.
const GenerationSystemPrompt = "You are a helpful AI assistant. Use the given context to answer the user's question."

const generationPrompt = `Answer the question below from the following context:
### Context: %s
### question: %s
`

// RenderGenerationPrompt formats the evidence-conditioned user turn.
func RenderGenerationPrompt(question, context string) string {
	return fmt.Sprintf(generationPrompt, context, question)
}

// ClassifierSystemPrompt instructs the model to label a query's relevance to
// the indexed jobs/products data.
const ClassifierSystemPrompt = `You are an expert in classifying queries by their relevance to a dataset containing information about jobs and products.
Classify the input query into exactly one of the following categories:
- **Irrelevant**: The query is unrelated to jobs or products. Includes greetings, casual conversation, or meta-questions about the system.
- **Relevant**: The query directly concerns jobs or products and can be answered using the indexed data.
- **Complex**: The query is related to jobs or products but requires multi-step reasoning, comparisons, or advanced filtering.

Respond with only the category name: ` + "`Irrelevant`, `Relevant`, or `Complex`" + `. Do not include any explanation or additional text.`

// RenderClassifierPrompt formats the classification request for a query.
func RenderClassifierPrompt(query string) string {
	return fmt.Sprintf("Classify this query: %s", query)
}

// EntitySystemPrompt instructs the model to extract entity names for graph
// retrieval.
const EntitySystemPrompt = `You are expert at extracting entities from the text. these entities will be used for graph data retrieval.
You must generate the output as a comma-separated list of strings, where each element represents an extracted entity. Do not output any reasoning, Provide the list only.`

// RenderEntityPrompt formats the extraction request for a query.
func RenderEntityPrompt(query string) string {
	return fmt.Sprintf("Use the given format to extract entities from the following input: %s", query)
}
