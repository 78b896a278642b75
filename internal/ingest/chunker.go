package ingest

import (
	"fmt"
	"strings"
)

// Chunker splits document text into overlapping segments.
//
// Boundaries prefer, in order: a paragraph break, a sentence end, a hard
// cut at the size limit. Sizes are measured in runes so multi-byte text
// (accented Portuguese, CJK) does not get cut mid-character.
type Chunker struct {
	size    int // maximum chunk length in runes
	overlap int // runes shared between adjacent chunks
}

// NewChunker creates a chunker. size must be positive and overlap must be
// smaller than size; config.Validate enforces this before construction.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		panic(fmt.Sprintf("BUG: chunk size must be positive, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		panic(fmt.Sprintf("BUG: overlap must be in [0, size), got %d with size %d", overlap, size))
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks a document's text. Every rune of the input appears in at
// least one chunk, and ordinals are dense starting at zero.
func (c *Chunker) Split(doc *Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: document %s has no text", ErrChunking, doc.ID)
	}

	runes := []rune(doc.Text)
	if len(runes) <= c.size {
		return []Chunk{{
			ID:         ChunkID(doc.ID, 0),
			DocumentID: doc.ID,
			Ordinal:    0,
			Content:    doc.Text,
			Offset:     0,
		}}, nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		chunks = append(chunks, Chunk{
			ID:         ChunkID(doc.ID, len(chunks)),
			DocumentID: doc.ID,
			Ordinal:    len(chunks),
			Content:    string(runes[start:end]),
			Offset:     start,
		})

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Overlap would stall; force forward progress.
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// breakPoint finds the best split position in (start, limit]. It scans the
// tail of the window so a break is only taken when it keeps the chunk
// reasonably full.
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	// Do not shrink the chunk below half its target size.
	floor := start + c.size/2

	if p := lastIndexFrom(runes, floor, limit, "\n\n"); p > 0 {
		return p + len([]rune("\n\n"))
	}
	for _, sep := range []string{". ", ".\n", "! ", "? "} {
		if p := lastIndexFrom(runes, floor, limit, sep); p > 0 {
			return p + len([]rune(sep))
		}
	}
	return limit
}

// lastIndexFrom returns the last occurrence of sep within runes[floor:limit],
// as an absolute index, or -1.
func lastIndexFrom(runes []rune, floor, limit int, sep string) int {
	window := string(runes[floor:limit])
	i := strings.LastIndex(window, sep)
	if i < 0 {
		return -1
	}
	return floor + len([]rune(window[:i]))
}
