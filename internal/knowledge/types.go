// Package knowledge persists embedded document chunks and serves
// similarity searches over them.
//
// The store speaks pgvector: each chunk row carries its text, metadata and
// a 768-dimension embedding. Embedding happens upstream (internal/rag);
// this package only moves vectors in and out of PostgreSQL.
package knowledge

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("knowledge entry not found")
)

// Entry is a stored chunk with its provenance.
type Entry struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Title      string
	DocType    string
	SourceName string
	SourcePath string
	IngestedAt time.Time
}

// Result is an entry scored against a query vector.
type Result struct {
	Entry
	// Similarity is cosine similarity in [0, 1]; 1 means identical direction.
	Similarity float32
}

// SearchOption configures a similarity search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit    int
	docTypes []string
}

// WithLimit caps the number of results. Default: 10.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithDocTypes restricts results to the given document types.
func WithDocTypes(types ...string) SearchOption {
	return func(c *searchConfig) {
		c.docTypes = types
	}
}
