package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// Chunk is one retrievable unit produced from a document's text.
// Indices are contiguous from 0 in document order.
type Chunk struct {
	Index          int
	Content        string
	CharacterCount int
	WordCount      int
	PageNumber     int
	Metadata       map[string]any
}

// Chunker splits cleaned text into bounded, overlapping units.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

func (c *Chunker) ChunkSize() int    { return c.chunkSize }
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// Chunk splits text with the given method. The input is the raw
// marker-bearing extractor output; page attribution runs against it
// before cleaning strips the markers.
func (c *Chunker) Chunk(text, method string) ([]Chunk, error) {
	var chunks []Chunk

	switch method {
	case types.MethodSlidingWindow:
		chunks = c.slidingWindow(CleanText(text))
	case types.MethodParagraph:
		chunks = c.paragraphBased(text)
	default:
		return nil, &types.ChunkingError{Method: method}
	}

	for i := range chunks {
		chunks[i].PageNumber = PageForChunk(text, chunks[i].Content)
	}
	return chunks, nil
}

var (
	pageMarker       = regexp.MustCompile(`--- Page (\d+) ---`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)
	blankLine        = regexp.MustCompile(`\n\s*\n`)
)

// CleanText normalizes extractor output for chunking: page markers are
// stripped, whitespace runs collapse to single spaces, ends trimmed.
func CleanText(text string) string {
	text = pageMarker.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitSentences cuts text at sentence-ending punctuation followed by
// whitespace. The trailing fragment is kept even without a terminator.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[start : loc[0]+1])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// slidingWindow greedily packs sentences under the size budget. On
// overflow the finished chunk is emitted and the next one is seeded
// with a trailing-sentence suffix whose total length fits the overlap
// budget. The overflowing sentence always joins the new chunk even if
// that busts the size cap: no sentence is ever dropped.
func (c *Chunker) slidingWindow(text string) []Chunk {
	sentences := SplitSentences(text)

	var chunks []Chunk
	var current string
	var currentSentences []string
	index := 0

	for _, sentence := range sentences {
		test := sentence
		if current != "" {
			test = current + " " + sentence
		}

		if len(test) <= c.chunkSize {
			current = test
			currentSentences = append(currentSentences, sentence)
			continue
		}

		if current != "" {
			chunks = append(chunks, c.newChunk(index, current, map[string]any{
				"sentence_count": len(currentSentences),
			}))
			index++
		}

		if c.chunkOverlap > 0 && len(currentSentences) > 1 {
			current, currentSentences = c.overlapSuffix(currentSentences)
		} else {
			current = ""
			currentSentences = nil
		}

		if current != "" {
			current = current + " " + sentence
		} else {
			current = sentence
		}
		currentSentences = append(currentSentences, sentence)
	}

	if current != "" {
		chunks = append(chunks, c.newChunk(index, current, map[string]any{
			"sentence_count": len(currentSentences),
		}))
	}
	return chunks
}

// overlapSuffix walks the emitted chunk's sentences backward, keeping
// as many whole trailing sentences as fit the overlap budget.
func (c *Chunker) overlapSuffix(sentences []string) (string, []string) {
	overlapChars := 0
	var overlap []string

	for j := len(sentences) - 1; j >= 0; j-- {
		s := sentences[j]
		if overlapChars+len(s) > c.chunkOverlap {
			break
		}
		overlap = append([]string{s}, overlap...)
		overlapChars += len(s)
	}

	return strings.Join(overlap, " "), overlap
}

// paragraphBased accumulates whole paragraphs under the size budget
// with no overlap. A paragraph bigger than the budget becomes its own
// oversized chunk.
func (c *Chunker) paragraphBased(text string) []Chunk {
	text = pageMarker.ReplaceAllString(text, " ")

	var paragraphs []string
	for _, p := range blankLine.Split(text, -1) {
		p = strings.TrimSpace(whitespaceRun.ReplaceAllString(p, " "))
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []Chunk
	var current string
	paragraphCount := 0
	index := 0

	for _, paragraph := range paragraphs {
		test := paragraph
		if current != "" {
			test = current + "\n\n" + paragraph
		}

		if len(test) <= c.chunkSize {
			current = test
			paragraphCount++
			continue
		}

		if current != "" {
			chunks = append(chunks, c.newChunk(index, current, map[string]any{
				"paragraph_count": paragraphCount,
			}))
			index++
		}

		current = paragraph
		paragraphCount = 1
	}

	if current != "" {
		chunks = append(chunks, c.newChunk(index, current, map[string]any{
			"paragraph_count": paragraphCount,
		}))
	}
	return chunks
}

func (c *Chunker) newChunk(index int, content string, extra map[string]any) Chunk {
	content = strings.TrimSpace(content)

	metadata := map[string]any{
		"chunk_size":    c.chunkSize,
		"chunk_overlap": c.chunkOverlap,
	}
	for k, v := range extra {
		metadata[k] = v
	}

	return Chunk{
		Index:          index,
		Content:        content,
		CharacterCount: len(content),
		WordCount:      len(strings.Fields(content)),
		Metadata:       metadata,
	}
}

// PageForChunk finds the chunk inside the original marker-bearing text
// and returns the page of the nearest preceding marker. When cleaning
// altered the content so the verbatim search misses, this deliberately
// falls back to page 1 rather than fuzzy-matching.
func PageForChunk(original, content string) int {
	if !pageMarker.MatchString(original) {
		return 1
	}

	pos := strings.Index(original, content)
	if pos < 0 {
		return 1
	}

	markers := pageMarker.FindAllStringSubmatchIndex(original[:pos], -1)
	if len(markers) == 0 {
		return 1
	}

	last := markers[len(markers)-1]
	page, err := strconv.Atoi(original[last[2]:last[3]])
	if err != nil {
		return 1
	}
	return page
}
