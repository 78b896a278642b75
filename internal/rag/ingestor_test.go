package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiscovery/pdiscovery/internal/ingest"
	"github.com/pdiscovery/pdiscovery/internal/log"
	"github.com/pdiscovery/pdiscovery/internal/testutil"
)

func newTestIngestor(t *testing.T) (*Ingestor, *fakeStore) {
	t.Helper()
	g := testutil.NewTestGenkit(t)
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := newFakeStore()

	loader := ingest.NewLoader(log.NewNop())
	chunker := ingest.NewChunker(200, 40)
	indexer := NewIndexer(embedder, store, log.NewNop(), WithRateLimit(1000))
	return NewIngestor(loader, chunker, indexer, log.NewNop()), store
}

func TestIngestorAddFile(t *testing.T) {
	in, store := newTestIngestor(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "research-home.md")
	content := "# Home Research\n\n" + strings.Repeat("A finding about the home screen. ", 30)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	n, err := in.AddFile(context.Background(), path, ingest.DocTypeUnknown)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	assert.Len(t, store.entries, n)

	for _, e := range store.entries {
		assert.Equal(t, "Home Research", e.Title)
		assert.Equal(t, string(ingest.DocTypeResearch), e.DocType, "type inferred from filename")
	}
}

func TestIngestorAddDirectory(t *testing.T) {
	in, store := newTestIngestor(t)

	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("one.md", "# One\n\nFindings one.")
	write("two.md", "# Two\n\nFindings two.")
	write("broken.pdf", "not a pdf at all")
	write("skip.txt", "unsupported")

	result, err := in.AddDirectory(context.Background(), dir, ingest.DocTypeUnknown)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesAdded)
	assert.Equal(t, 1, result.FilesFailed, "corrupt pdf fails without aborting the run")
	assert.Equal(t, 0, result.FilesSkipped, "unsupported extensions are filtered by the walk")
	assert.Equal(t, result.Chunks, len(store.entries))
}

func TestIngestorMissingPath(t *testing.T) {
	in, _ := newTestIngestor(t)

	_, err := in.AddDirectory(context.Background(), "/no/such/dir", ingest.DocTypeUnknown)
	require.Error(t, err)
}
