package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Question: "What is the warranty period?",
		Sources: []Source{
			{DocumentName: "manual.pdf", PageNumber: 3, Similarity: 0.912, Content: "The warranty lasts two years."},
			{DocumentName: "faq.pdf", PageNumber: 1, Similarity: 0.755, Content: "Warranty claims need a receipt."},
		},
	})

	assert.True(t, strings.HasPrefix(prompt, DefaultSystemPrompt))
	assert.Contains(t, prompt, "[Source 1: manual.pdf, Page 3, Similarity: 0.912]")
	assert.Contains(t, prompt, "[Source 2: faq.pdf, Page 1, Similarity: 0.755]")
	assert.Contains(t, prompt, "The warranty lasts two years.")
	assert.Contains(t, prompt, "\n---\n")
	assert.Contains(t, prompt, "QUESTION: What is the warranty period?")
	assert.True(t, strings.HasSuffix(prompt, "ANSWER:"))
	assert.NotContains(t, prompt, "CONVERSATION HISTORY")
}

func TestBuildPromptCustomSystemPrompt(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		SystemPrompt: "Answer in French.",
		Question:     "q",
		Sources:      []Source{{DocumentName: "d.pdf", PageNumber: 1, Content: "c"}},
	})

	assert.True(t, strings.HasPrefix(prompt, "Answer in French."))
	assert.NotContains(t, prompt, DefaultSystemPrompt)
}

func TestBuildPromptWithHistory(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Question: "And after that?",
		Sources:  []Source{{DocumentName: "d.pdf", PageNumber: 1, Content: "c"}},
		History: []types.ChatMessage{
			{MessageType: types.MessageUser, Content: "What happens first?"},
			{MessageType: types.MessageAssistant, Content: "Setup runs first."},
			{MessageType: types.MessageSystem, Content: "hidden"},
		},
	})

	assert.Contains(t, prompt, "CONVERSATION HISTORY:")
	assert.Contains(t, prompt, "User: What happens first?")
	assert.Contains(t, prompt, "Assistant: Setup runs first.")
	assert.NotContains(t, prompt, "hidden")

	// History sits between context and question.
	assert.Less(t, strings.Index(prompt, "CONTEXT:"), strings.Index(prompt, "CONVERSATION HISTORY:"))
	assert.Less(t, strings.Index(prompt, "CONVERSATION HISTORY:"), strings.Index(prompt, "QUESTION:"))
}

func TestSessionTitle(t *testing.T) {
	assert.Equal(t, "short question", SessionTitle("  short question  "))

	long := strings.Repeat("a", 150)
	title := SessionTitle(long)
	assert.Len(t, title, 103)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.Equal(t, long[:100], title[:100])
}

func TestSessionTitleExactBoundary(t *testing.T) {
	exact := strings.Repeat("b", 100)
	assert.Equal(t, exact, SessionTitle(exact))
}

func TestSessionTitleMultibyte(t *testing.T) {
	title := SessionTitle(strings.Repeat("é", 150))

	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, strings.Repeat("é", 100)+"...", title)
}

func TestContentPreview(t *testing.T) {
	short := "short content"
	assert.Equal(t, short, ContentPreview(short))

	long := strings.Repeat("x", 250)
	preview := ContentPreview(long)
	assert.Len(t, preview, 203)
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestContentPreviewMultibyte(t *testing.T) {
	preview := ContentPreview(strings.Repeat("界", 250))

	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, strings.Repeat("界", 200)+"...", preview)
}
