package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/pdiscovery/pdiscovery/internal/ingest"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
	"github.com/pdiscovery/pdiscovery/internal/log"
	"github.com/pdiscovery/pdiscovery/internal/retry"
)

// Indexer embeds chunks in batches and upserts them into the store.
//
// Concurrent indexing of different documents is safe; indexing the same
// document is serialized on a per-document mutex so a re-ingest never
// interleaves with an in-flight one.
type Indexer struct {
	embedder  ai.Embedder
	store     Store
	limiter   *rate.Limiter
	retryCfg  retry.Config
	batchSize int
	logger    log.Logger

	mu   sync.Mutex
	docs map[string]*sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithBatchSize sets chunks per embedding request. Default: 16.
func WithBatchSize(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithRateLimit caps embedding requests per second. Default: 2 rps.
func WithRateLimit(rps float64) IndexerOption {
	return func(ix *Indexer) {
		if rps > 0 {
			ix.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewIndexer creates an indexer.
func NewIndexer(embedder ai.Embedder, store Store, logger log.Logger, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		embedder:  embedder,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		retryCfg:  retry.DefaultConfig(),
		batchSize: 16,
		logger:    logger.With("component", "indexer"),
		docs:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexDocument embeds and stores every chunk of a document, then deletes
// stale chunks from any previous, longer version. Chunk IDs are derived
// from the document ID and ordinal, so the operation is idempotent.
func (ix *Indexer) IndexDocument(ctx context.Context, doc *ingest.Document, chunks []ingest.Chunk) error {
	if len(chunks) == 0 {
		return &IndexError{Cause: fmt.Errorf("document %s has no chunks", doc.ID)}
	}

	lock := ix.docLock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	var failed []string
	var firstErr error

	for i := 0; i < len(chunks); i += ix.batchSize {
		batch := chunks[i:min(i+ix.batchSize, len(chunks))]
		batchFailed, err := ix.indexBatch(ctx, doc, batch)
		if err != nil {
			failed = append(failed, batchFailed...)
			if firstErr == nil {
				firstErr = err
			}
			// Context errors will fail every remaining batch too.
			if ctx.Err() != nil {
				break
			}
		}
	}

	if len(failed) > 0 {
		return &IndexError{FailedIDs: failed, Cause: firstErr}
	}

	// Drop chunks beyond the new tail; a shrunk document must not leave
	// stale rows behind.
	deleted, err := ix.store.DeleteDocumentChunks(ctx, doc.ID, len(chunks))
	if err != nil {
		return &IndexError{Cause: fmt.Errorf("pruning stale chunks: %w", err)}
	}

	ix.logger.Info("document indexed",
		"doc_id", doc.ID,
		"title", doc.Title,
		"chunks", len(chunks),
		"stale_deleted", deleted,
		"duration", time.Since(start))
	return nil
}

// indexBatch embeds one batch (with retry on transient provider errors)
// and upserts each chunk. On failure it returns the IDs of the chunks
// that did not land; chunks upserted before a mid-batch failure are not
// reported.
func (ix *Indexer) indexBatch(ctx context.Context, doc *ingest.Document, batch []ingest.Chunk) ([]string, error) {
	docs := make([]*ai.Document, len(batch))
	for i, c := range batch {
		docs[i] = ai.DocumentFromText(c.Content, nil)
	}

	allIDs := func() []string {
		ids := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}
		return ids
	}

	var resp *ai.EmbedResponse
	err := retry.Do(ctx, ix.retryCfg, func(ctx context.Context) error {
		if err := ix.limiter.Wait(ctx); err != nil {
			return err
		}
		var embedErr error
		resp, embedErr = ix.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if embedErr != nil {
			ix.logger.Warn("embedding batch failed", "doc_id", doc.ID, "error", embedErr)
		}
		return embedErr
	})
	if err != nil {
		return allIDs(), fmt.Errorf("embedding batch: %w", err)
	}
	if len(resp.Embeddings) != len(batch) {
		return allIDs(), fmt.Errorf("embedder returned %d vectors for %d chunks",
			len(resp.Embeddings), len(batch))
	}

	for i, c := range batch {
		entry := knowledge.Entry{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
			Content:    c.Content,
			Title:      doc.Title,
			DocType:    string(doc.Type),
			SourceName: doc.SourceName,
			SourcePath: doc.SourcePath,
			IngestedAt: doc.LoadedAt,
		}
		if err := ix.store.Upsert(ctx, entry, resp.Embeddings[i].Embedding); err != nil {
			// The failed chunk and everything after it in the batch.
			var remaining []string
			for _, rest := range batch[i:] {
				remaining = append(remaining, rest.ID)
			}
			return remaining, fmt.Errorf("storing chunk %s: %w", c.ID, err)
		}
	}
	return nil, nil
}

func (ix *Indexer) docLock(docID string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if m, ok := ix.docs[docID]; ok {
		return m
	}
	m := &sync.Mutex{}
	ix.docs[docID] = m
	return m
}
