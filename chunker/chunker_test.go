package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

func TestNewDefaults(t *testing.T) {
	c := New(0, -5)
	assert.Equal(t, 1000, c.ChunkSize())
	assert.Equal(t, 0, c.ChunkOverlap())
}

func TestCleanText(t *testing.T) {
	raw := "\n--- Page 1 ---\nHello   world.\n\n--- Page 2 ---\nSecond\tpage."
	assert.Equal(t, "Hello world. Second page.", CleanText(raw))
}

func TestCleanTextEmpty(t *testing.T) {
	assert.Equal(t, "", CleanText("   \n\t  "))
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("One. Two! Three? Four")
	require.Len(t, sentences, 4)
	assert.Equal(t, "One.", sentences[0])
	assert.Equal(t, "Two!", sentences[1])
	assert.Equal(t, "Three?", sentences[2])
	assert.Equal(t, "Four", sentences[3])
}

func TestSplitSentencesNoTerminator(t *testing.T) {
	sentences := SplitSentences("just a fragment")
	require.Len(t, sentences, 1)
	assert.Equal(t, "just a fragment", sentences[0])
}

func TestUnknownMethod(t *testing.T) {
	c := New(100, 0)
	_, err := c.Chunk("some text", "semantic")

	var chunkErr *types.ChunkingError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, "semantic", chunkErr.Method)
}

func TestSlidingWindowSmallBudget(t *testing.T) {
	c := New(10, 0)
	chunks, err := c.Chunk("One. Two. Three. Four.", types.MethodSlidingWindow)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "One. Two.", chunks[0].Content)
	assert.Equal(t, "Three.", chunks[1].Content)
	assert.Equal(t, "Four.", chunks[2].Content)
}

func TestSlidingWindowIndicesContiguous(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about a topic. ", i)
	}

	c := New(120, 40)
	chunks, err := c.Chunk(b.String(), types.MethodSlidingWindow)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, len(chunk.Content), chunk.CharacterCount)
		assert.Equal(t, len(strings.Fields(chunk.Content)), chunk.WordCount)
	}
}

func TestSlidingWindowSentenceConservation(t *testing.T) {
	sentences := []string{
		"The first topic covers introductions.",
		"The second topic covers methods.",
		"The third topic covers results.",
		"The fourth topic covers discussion.",
		"The fifth topic covers conclusions.",
	}
	text := strings.Join(sentences, " ")

	c := New(80, 0)
	chunks, err := c.Chunk(text, types.MethodSlidingWindow)
	require.NoError(t, err)

	joined := ""
	for _, chunk := range chunks {
		joined += " " + chunk.Content
	}
	for _, s := range sentences {
		assert.Contains(t, joined, s)
	}
}

func TestSlidingWindowOverlapWithinBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Item %d is described right here. ", i)
	}

	overlap := 60
	c := New(150, overlap)
	chunks, err := c.Chunk(b.String(), types.MethodSlidingWindow)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with whole trailing sentences of
	// its predecessor, and the repeated prefix never exceeds the budget.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		shared := 0
		for _, s := range SplitSentences(chunks[i].Content) {
			if !strings.Contains(prev, s) {
				break
			}
			shared += len(s)
		}
		assert.LessOrEqual(t, shared, overlap)
	}
}

func TestSlidingWindowZeroOverlapNoRepeats(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Unique sentence marker %d ends now. ", i)
	}

	c := New(100, 0)
	chunks, err := c.Chunk(b.String(), types.MethodSlidingWindow)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, chunk := range chunks {
		for _, s := range SplitSentences(chunk.Content) {
			assert.False(t, seen[s], "sentence repeated without overlap: %q", s)
			seen[s] = true
		}
	}
}

func TestSlidingWindowOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 60)
	text := "Short one. " + strings.TrimSpace(long) + ". Short two."

	c := New(50, 0)
	chunks, err := c.Chunk(text, types.MethodSlidingWindow)
	require.NoError(t, err)

	// The oversized sentence still lands in a chunk.
	joined := ""
	for _, chunk := range chunks {
		joined += " " + chunk.Content
	}
	assert.Contains(t, joined, strings.TrimSpace(long))
}

func TestSlidingWindowDeterministic(t *testing.T) {
	text := strings.Repeat("A stable input produces stable output. ", 40)
	c := New(200, 50)

	first, err := c.Chunk(text, types.MethodSlidingWindow)
	require.NoError(t, err)
	second, err := c.Chunk(text, types.MethodSlidingWindow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSlidingWindowMetadata(t *testing.T) {
	c := New(100, 20)
	chunks, err := c.Chunk("A sentence here. Another sentence there.", types.MethodSlidingWindow)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 100, chunks[0].Metadata["chunk_size"])
	assert.Equal(t, 20, chunks[0].Metadata["chunk_overlap"])
	assert.Equal(t, 2, chunks[0].Metadata["sentence_count"])
}

func TestParagraphMethod(t *testing.T) {
	text := "First paragraph stays whole.\n\nSecond paragraph also stays whole.\n\nThird one too."

	c := New(70, 0)
	chunks, err := c.Chunk(text, types.MethodParagraph)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.NotContains(t, chunk.Content, "--- Page")
		assert.Contains(t, chunk.Metadata, "paragraph_count")
	}
}

func TestParagraphOversized(t *testing.T) {
	big := strings.Repeat("long paragraph content ", 20)
	text := "Small.\n\n" + big + "\n\nAlso small."

	c := New(50, 0)
	chunks, err := c.Chunk(text, types.MethodParagraph)
	require.NoError(t, err)

	found := false
	for _, chunk := range chunks {
		if chunk.CharacterCount > 50 {
			found = true
		}
	}
	assert.True(t, found, "oversized paragraph should become its own chunk")
}

func TestPageForChunk(t *testing.T) {
	original := "\n--- Page 1 ---\nAlpha content here.\n--- Page 2 ---\nBeta content here.\n--- Page 3 ---\nGamma content here."

	assert.Equal(t, 1, PageForChunk(original, "Alpha content here."))
	assert.Equal(t, 2, PageForChunk(original, "Beta content here."))
	assert.Equal(t, 3, PageForChunk(original, "Gamma content here."))
}

func TestPageForChunkNoMarkers(t *testing.T) {
	assert.Equal(t, 1, PageForChunk("plain text with no markers", "plain text"))
}

func TestPageForChunkContentNotFound(t *testing.T) {
	original := "\n--- Page 4 ---\nSome page four text."
	assert.Equal(t, 1, PageForChunk(original, "content that was rewritten by cleaning"))
}

func TestChunkAssignsPages(t *testing.T) {
	original := "\n--- Page 1 ---\nAlpha.\n--- Page 2 ---\nBeta."

	c := New(1000, 0)
	chunks, err := c.Chunk(original, types.MethodSlidingWindow)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	// Cleaning merged both pages into one chunk, so the verbatim search
	// misses and attribution falls back to page 1.
	assert.Equal(t, 1, chunks[0].PageNumber)
}

func TestChunkEmptyText(t *testing.T) {
	c := New(100, 0)
	chunks, err := c.Chunk("", types.MethodSlidingWindow)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
