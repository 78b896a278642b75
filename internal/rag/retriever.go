package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/pdiscovery/pdiscovery/internal/knowledge"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

const embedQueryTimeout = 15 * time.Second

// overfetchFactor widens the SQL limit so the similarity threshold can
// discard rows without starving top-k.
const overfetchFactor = 3

// Retriever embeds a query and returns the most relevant stored chunks.
type Retriever struct {
	embedder ai.Embedder
	store    Store
	topK     int
	minScore float32
	logger   log.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithTopK sets the maximum number of results. Default: 5.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMinScore sets the similarity threshold in [0,1]. Default: 0.7.
func WithMinScore(s float32) RetrieverOption {
	return func(r *Retriever) { r.minScore = s }
}

// NewRetriever creates a retriever.
func NewRetriever(embedder ai.Embedder, store Store, logger log.Logger, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		store:    store,
		topK:     5,
		minScore: 0.7,
		logger:   logger.With("component", "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunks scoring at or above the threshold,
// best first. An empty result is not an error: it means nothing in the
// index is relevant enough, and the caller decides how to answer.
func (r *Retriever) Retrieve(ctx context.Context, query string, docTypes ...string) ([]knowledge.Result, error) {
	start := time.Now()

	embedCtx, cancel := context.WithTimeout(ctx, embedQueryTimeout)
	defer cancel()

	resp, err := r.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrieval, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", ErrRetrieval)
	}

	opts := []knowledge.SearchOption{knowledge.WithLimit(r.topK * overfetchFactor)}
	if len(docTypes) > 0 {
		opts = append(opts, knowledge.WithDocTypes(docTypes...))
	}

	candidates, err := r.store.Search(ctx, resp.Embeddings[0].Embedding, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	results := r.rank(candidates)

	r.logger.Debug("retrieval complete",
		"candidates", len(candidates),
		"results", len(results),
		"min_score", r.minScore,
		"duration", time.Since(start))
	return results, nil
}

// rank applies the threshold, then orders deterministically: similarity
// descending, then newest ingestion first, then ordinal ascending. The
// tie-breaks keep paging stable when many chunks score identically.
func (r *Retriever) rank(candidates []knowledge.Result) []knowledge.Result {
	kept := make([]knowledge.Result, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= r.minScore {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.IngestedAt.Equal(b.IngestedAt) {
			return a.IngestedAt.After(b.IngestedAt)
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Ordinal < b.Ordinal
	})

	if len(kept) > r.topK {
		kept = kept[:r.topK]
	}
	return kept
}
