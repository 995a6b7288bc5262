package services

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docqa/rag/models"
)

// Chunker splits extracted text into retrievable units. Implementations must
// be deterministic: identical input and parameters always produce the same
// boundaries and the same chunk ids.
type Chunker interface {
	Split(docID, text string) ([]models.Chunk, error)
	Strategy() string
	Granularity() string
}

// newChunk derives the chunk id from the document id plus the window offset,
// so re-ingesting identical input yields identical ids.
func newChunk(docID, text string, offset, length int) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("%s_chunk_%d", docID, offset),
		Text:       text,
		DocumentID: docID,
		Offset:     offset,
		Length:     length,
	}
}

// WindowChunker emits consecutive windows of fixed size; each window starts
// size-overlap units after the previous one. The trailing window is emitted
// even when shorter than size, so no trailing content is silently dropped.
// Units are runes by default, or cl100k_base tokens when the granularity is
// tokens; offsets and lengths are expressed in the same units.
type WindowChunker struct {
	size        int
	overlap     int
	granularity string
	encoder     *tiktoken.Tiktoken
}

// NewWindowChunker validates the window parameters: size must be positive
// and the overlap must satisfy 0 <= overlap < size.
func NewWindowChunker(size, overlap int, granularity string) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", ErrChunking, overlap, size)
	}

	c := &WindowChunker{size: size, overlap: overlap, granularity: granularity}
	switch granularity {
	case models.GranularityRunes:
	case models.GranularityTokens:
		encoder, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("%w: token encoder unavailable: %v", ErrChunking, err)
		}
		c.encoder = encoder
	default:
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrChunking, granularity)
	}
	return c, nil
}

func (c *WindowChunker) Strategy() string    { return models.StrategyWindow }
func (c *WindowChunker) Granularity() string { return c.granularity }

// Split windows the text. Empty input produces an empty sequence, not an
// error. For rune granularity, concatenating the chunk texts with the
// overlap removed reconstructs the input exactly.
func (c *WindowChunker) Split(docID, text string) ([]models.Chunk, error) {
	if text == "" {
		return []models.Chunk{}, nil
	}
	if c.granularity == models.GranularityTokens {
		return c.splitTokens(docID, text), nil
	}
	return c.splitRunes(docID, text), nil
}

func (c *WindowChunker) splitRunes(docID, text string) []models.Chunk {
	runes := []rune(text)
	stride := c.size - c.overlap

	var chunks []models.Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, newChunk(docID, string(runes[start:end]), start, end-start))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (c *WindowChunker) splitTokens(docID, text string) []models.Chunk {
	tokens := c.encoder.Encode(text, nil, nil)
	stride := c.size - c.overlap

	var chunks []models.Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, newChunk(docID, c.encoder.Decode(tokens[start:end]), start, end-start))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// RecursiveChunker delegates to langchaingo's recursive character splitter,
// which prefers paragraph and sentence boundaries over fixed windows.
// Offsets are recovered by scanning forward through the source text so ids
// stay deterministic. The window chunker's exact round-trip guarantee does
// not hold here because the splitter may drop separator runs.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: need size > 0 and 0 <= overlap < size, got size=%d overlap=%d", ErrChunking, size, overlap)
	}
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (c *RecursiveChunker) Strategy() string    { return models.StrategyRecursive }
func (c *RecursiveChunker) Granularity() string { return models.GranularityRunes }

func (c *RecursiveChunker) Split(docID, text string) ([]models.Chunk, error) {
	if text == "" {
		return []models.Chunk{}, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunking, err)
	}

	runes := []rune(text)
	cursor := 0
	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		offset := runeIndexFrom(runes, []rune(part), cursor)
		if offset < 0 {
			offset = cursor
		}
		chunks = append(chunks, newChunk(docID, part, offset, len([]rune(part))))
		// Overlapping chunks may start before the previous chunk's end, so
		// only advance past the current start.
		cursor = offset + 1
	}
	return chunks, nil
}

// runeIndexFrom finds needle in haystack at or after start, in rune units.
func runeIndexFrom(haystack, needle []rune, start int) int {
	if len(needle) == 0 || start < 0 {
		return -1
	}
	for i := start; i+len(needle) <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}
