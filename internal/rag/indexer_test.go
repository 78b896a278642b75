package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiscovery/pdiscovery/internal/ingest"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
	"github.com/pdiscovery/pdiscovery/internal/log"
	"github.com/pdiscovery/pdiscovery/internal/testutil"
)

type deleteCall struct {
	documentID  string
	fromOrdinal int
}

// fakeStore is an in-memory Store for unit tests.
type fakeStore struct {
	mu         sync.Mutex
	entries    map[string]knowledge.Entry
	vectors    map[string][]float32
	deletes    []deleteCall
	results      []knowledge.Result
	failUpsert   error
	failUpsertID string // only reject this chunk ID when set
	failSearch   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]knowledge.Entry),
		vectors: make(map[string][]float32),
	}
}

func (f *fakeStore) Upsert(_ context.Context, entry knowledge.Entry, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil && (f.failUpsertID == "" || f.failUpsertID == entry.ID) {
		return f.failUpsert
	}
	f.entries[entry.ID] = entry
	f.vectors[entry.ID] = embedding
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSearch != nil {
		return nil, f.failSearch
	}
	return f.results, nil
}

func (f *fakeStore) DeleteDocumentChunks(_ context.Context, documentID string, fromOrdinal int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{documentID: documentID, fromOrdinal: fromOrdinal})
	var n int64
	for id, e := range f.entries {
		if e.DocumentID == documentID && e.Ordinal >= fromOrdinal {
			delete(f.entries, id)
			delete(f.vectors, id)
			n++
		}
	}
	return n, nil
}

func docWithChunks(t *testing.T, text string, chunkSize int) (*ingest.Document, []ingest.Chunk) {
	t.Helper()
	doc := &ingest.Document{
		ID:         ingest.DocumentID("/data/research.md"),
		Title:      "Research",
		Type:       ingest.DocTypeResearch,
		SourceName: "research.md",
		SourcePath: "/data/research.md",
		Text:       text,
		LoadedAt:   time.Now().UTC(),
	}
	chunks, err := ingest.NewChunker(chunkSize, chunkSize/5).Split(doc)
	require.NoError(t, err)
	return doc, chunks
}

func TestIndexerStoresAllChunks(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithBatchSize(2), WithRateLimit(1000))

	doc, chunks := docWithChunks(t, strings.Repeat("A finding about checkout. ", 60), 150)
	require.Greater(t, len(chunks), 2)

	require.NoError(t, ix.IndexDocument(context.Background(), doc, chunks))

	assert.Len(t, store.entries, len(chunks))
	for _, c := range chunks {
		entry, ok := store.entries[c.ID]
		require.True(t, ok, "chunk %s not stored", c.ID)
		assert.Equal(t, doc.ID, entry.DocumentID)
		assert.Equal(t, c.Ordinal, entry.Ordinal)
		assert.Equal(t, c.Content, entry.Content)
		assert.Equal(t, "Research", entry.Title)
		assert.NotEmpty(t, store.vectors[c.ID])
	}

	// Stale tail pruning always runs after a successful index.
	require.Len(t, store.deletes, 1)
	assert.Equal(t, deleteCall{documentID: doc.ID, fromOrdinal: len(chunks)}, store.deletes[0])
}

func TestIndexerReingestIsIdempotent(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithRateLimit(1000))

	doc, chunks := docWithChunks(t, strings.Repeat("Stable content. ", 80), 200)

	require.NoError(t, ix.IndexDocument(context.Background(), doc, chunks))
	firstCount := len(store.entries)
	require.NoError(t, ix.IndexDocument(context.Background(), doc, chunks))

	assert.Equal(t, firstCount, len(store.entries), "re-ingesting must not duplicate rows")
}

func TestIndexerShrunkDocumentDropsStaleChunks(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithRateLimit(1000))

	doc, long := docWithChunks(t, strings.Repeat("Original longer content here. ", 60), 150)
	require.NoError(t, ix.IndexDocument(context.Background(), doc, long))

	shortDoc, short := docWithChunks(t, "Much shorter now.", 150)
	shortDoc.ID = doc.ID // same source document, new content
	for i := range short {
		short[i].DocumentID = doc.ID
		short[i].ID = ingest.ChunkID(doc.ID, i)
	}
	require.NoError(t, ix.IndexDocument(context.Background(), shortDoc, short))

	assert.Len(t, store.entries, len(short), "stale chunks beyond the new tail must be gone")
}

func TestIndexerEmbedFailureReportsFailedIDs(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	mock := testutil.NewMockEmbedder(8)
	embedder := mock.RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithRateLimit(1000))

	doc, chunks := docWithChunks(t, strings.Repeat("Content to fail on. ", 60), 150)
	mock.FailWith(errors.New("invalid api key")) // permanent, no retry

	err := ix.IndexDocument(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexing)

	var ixErr *IndexError
	require.ErrorAs(t, err, &ixErr)
	assert.Len(t, ixErr.FailedIDs, len(chunks))
	assert.Empty(t, store.entries, "nothing should be stored when embedding fails")
}

func TestIndexerPartialUpsertFailureReportsOnlyUnstoredIDs(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithBatchSize(64), WithRateLimit(1000))

	doc, chunks := docWithChunks(t, strings.Repeat("Content to fail midway. ", 60), 150)
	require.GreaterOrEqual(t, len(chunks), 3)

	failAt := 2
	store.failUpsert = errors.New("connection reset")
	store.failUpsertID = chunks[failAt].ID

	err := ix.IndexDocument(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexing)

	var ixErr *IndexError
	require.ErrorAs(t, err, &ixErr)

	var want []string
	for _, c := range chunks[failAt:] {
		want = append(want, c.ID)
	}
	assert.Equal(t, want, ixErr.FailedIDs, "chunks stored before the failure are not reported")
	for _, c := range chunks[:failAt] {
		assert.Contains(t, store.entries, c.ID)
	}
}

func TestIndexerNoChunksFails(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	ix := NewIndexer(embedder, newFakeStore(), log.NewNop())

	doc := &ingest.Document{ID: "doc_x"}
	err := ix.IndexDocument(context.Background(), doc, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexing)
}

func TestIndexerConcurrentSameDocumentSerializes(t *testing.T) {
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()
	ix := NewIndexer(embedder, store, log.NewNop(), WithRateLimit(1000))

	doc, chunks := docWithChunks(t, strings.Repeat("Concurrent content. ", 80), 200)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ix.IndexDocument(context.Background(), doc, chunks)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, store.entries, len(chunks))
}
