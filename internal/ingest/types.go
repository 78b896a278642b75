// Package ingest turns source documents into embeddable chunks.
//
// The pipeline is Loader -> Chunker: the loader extracts plain text and
// metadata from a PDF or Markdown file, the chunker splits the text into
// overlapping segments sized for the embedding model. Neither stage talks
// to the network or the database.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExtraction indicates a document could not be read or parsed.
	ErrExtraction = errors.New("document extraction failed")

	// ErrChunking indicates a document produced no usable chunks.
	ErrChunking = errors.New("document chunking failed")

	// ErrUnsupportedFormat indicates the file extension is not handled.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// DocType classifies a source document by its role in product discovery.
type DocType string

const (
	DocTypeDiscovery DocType = "discovery"
	DocTypeInterview DocType = "interview"
	DocTypeResearch  DocType = "research"
	DocTypeGuideline DocType = "guideline"
	DocTypeUnknown   DocType = "unknown"
)

// Document is the normalized form of a loaded source file.
type Document struct {
	// ID is derived from the source path and stable across re-ingestion.
	ID string

	Title      string
	Type       DocType
	SourceName string
	SourcePath string
	Text       string
	Pages      int // 0 for non-paginated formats
	LoadedAt   time.Time
}

// Chunk is a contiguous segment of a document's text.
type Chunk struct {
	// ID is "<document id>:<ordinal>"; re-chunking the same document
	// yields the same IDs, which makes indexing idempotent.
	ID         string
	DocumentID string
	Ordinal    int
	Content    string

	// Offset is the rune offset of Content within the document text.
	// Overlap means adjacent chunks share trailing/leading runes.
	Offset int
}

// DocumentID derives a stable identifier from a source path.
func DocumentID(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return "doc_" + hex.EncodeToString(sum[:])[:32]
}

// ChunkID derives the identifier for the nth chunk of a document.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", documentID, ordinal)
}
