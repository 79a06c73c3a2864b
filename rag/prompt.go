package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// DefaultSystemPrompt frames the model as a grounded assistant. A
// session-level system prompt overrides it.
const DefaultSystemPrompt = "You are a helpful assistant that answers questions based on the " +
	"provided document excerpts. Use only the information in the excerpts. " +
	"If the excerpts do not contain the answer, say so. Cite the source " +
	"documents when possible."

// NoContextAnswer is returned verbatim when retrieval finds nothing
// above the similarity threshold. No model call is made in that case.
const NoContextAnswer = "I couldn't find relevant information in your uploaded documents to " +
	"answer this question. Please make sure you have uploaded documents that " +
	"contain information about your query."

// PromptInput collects everything that goes into one generation prompt.
type PromptInput struct {
	SystemPrompt string
	Question     string
	Sources      []Source
	History      []types.ChatMessage
}

// BuildPrompt assembles the full prompt: system framing, numbered
// source excerpts with attribution headers, optional conversation
// history, then the question.
func BuildPrompt(in PromptInput) string {
	systemPrompt := in.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nCONTEXT:\n")

	blocks := make([]string, 0, len(in.Sources))
	for i, src := range in.Sources {
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s, Page %d, Similarity: %.3f]\n%s",
			i+1, src.DocumentName, src.PageNumber, src.Similarity, src.Content))
	}
	b.WriteString(strings.Join(blocks, "\n---\n"))

	if len(in.History) > 0 {
		b.WriteString("\n\nCONVERSATION HISTORY:\n")
		for _, msg := range in.History {
			switch msg.MessageType {
			case types.MessageUser:
				b.WriteString("User: ")
			case types.MessageAssistant:
				b.WriteString("Assistant: ")
			default:
				continue
			}
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\nQUESTION: ")
	b.WriteString(in.Question)
	b.WriteString("\n\nANSWER:")
	return b.String()
}

// SessionTitle derives a new session's title from its first question,
// truncated to 100 characters.
func SessionTitle(question string) string {
	return truncate(strings.TrimSpace(question), 100)
}

// ContentPreview trims source content for API responses.
func ContentPreview(content string) string {
	return truncate(content, 200)
}

// truncate cuts on rune boundaries so multi-byte text never ends up as
// invalid UTF-8 in stored titles and previews.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
