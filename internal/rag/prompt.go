package rag

import (
	"strings"

	"github.com/hyperjump/kiku/internal/models"
)

// SystemInstruction opens every prompt.
const SystemInstruction = "You answer questions using only the context below. " +
	"If the context does not contain the answer, say you don't know."

// BuildPrompt lays out the prompt in a fixed order: the system instruction,
// the conversation so far (omitted when history is empty), the retrieved
// context in rank order, then the question.
func BuildPrompt(question string, history []models.ConversationTurn, results []models.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("Context:\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Chunk.Text)
	}
	b.WriteString("\n\n")

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
