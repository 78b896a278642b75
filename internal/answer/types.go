// Package answer turns a question plus retrieved knowledge into a
// grounded, cited answer.
//
// The Assembler builds the prompt (objective instruction, guidelines
// verbatim, retrieved chunks with source markers, the literal question),
// the Generator calls the model and extracts citations, and the Service
// orchestrates classify -> retrieve -> assemble -> generate with degraded
// fallbacks so the user always gets a coherent reply.
package answer

import (
	"errors"
	"time"

	"github.com/pdiscovery/pdiscovery/internal/knowledge"
)

var (
	// ErrGeneration indicates the model call failed after retries.
	ErrGeneration = errors.New("answer generation failed")
)

// Citation points from the answer back to a retrieved chunk.
type Citation struct {
	// Marker is the source tag as it appears in the answer text ("S1").
	Marker     string
	ChunkID    string
	DocumentID string
	Title      string
	SourceName string
	// Excerpt is the leading portion of the cited chunk's content.
	Excerpt    string
	Similarity float32
}

// Answer is the generated reply with its provenance.
type Answer struct {
	ID        string
	Question  string
	Objective string
	Text      string
	Citations []Citation
	// Degraded is true when the answer was produced without retrieval
	// results or by a fallback path.
	Degraded  bool
	CreatedAt time.Time
}

// Prompt is an assembled model request.
type Prompt struct {
	System string
	User   string
	// Sources are the chunks included in the prompt, in marker order:
	// Sources[0] is [S1].
	Sources []knowledge.Result
}
