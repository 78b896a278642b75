// Package rag wires embedding, storage and similarity search into the
// retrieval pipeline: the Indexer embeds chunks and upserts them, the
// Retriever embeds queries and searches, and the Ingestor drives whole
// files and directories through both.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiscovery/pdiscovery/internal/knowledge"
)

var (
	// ErrIndexing indicates one or more chunks could not be embedded or
	// stored. Use errors.As with *IndexError to recover the failed IDs.
	ErrIndexing = errors.New("indexing failed")

	// ErrRetrieval indicates the query could not be embedded or searched.
	ErrRetrieval = errors.New("retrieval failed")
)

// IndexError carries the chunk IDs that failed after retries. Chunks not
// listed were stored successfully; re-running ingestion re-upserts
// everything idempotently.
type IndexError struct {
	FailedIDs []string
	Cause     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("indexing failed for %d chunks: %v", len(e.FailedIDs), e.Cause)
}

func (e *IndexError) Unwrap() error { return ErrIndexing }

// Store is the persistence surface the indexer and retriever need.
// *knowledge.Store satisfies it.
type Store interface {
	Upsert(ctx context.Context, entry knowledge.Entry, embedding []float32) error
	Search(ctx context.Context, embedding []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	DeleteDocumentChunks(ctx context.Context, documentID string, fromOrdinal int) (int64, error)
}
