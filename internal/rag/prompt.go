package rag

import (
	"strings"

	"github.com/bull/rag-chat-server/internal/storage"
)

const promptPreamble = "You are a helpful assistant. Use the following context passages to answer the user question.\n" +
	"If the information is not present in the context, say you don't know."

const passageSeparator = "\n---\n"

// BuildPrompt assembles the generation prompt from retrieved passages and the question.
// Passages keep their retrieval order. A passage without a source is labelled "unknown".
func BuildPrompt(question string, passages []storage.Result) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		source := p.Meta.Source
		if source == "" {
			source = "unknown"
		}
		parts[i] = p.Text + "\n[source: " + source + "]"
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(strings.Join(parts, passageSeparator))
	b.WriteString("\n\nUSER QUESTION:\n")
	b.WriteString(question)
	return b.String()
}
