package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiscovery/pdiscovery/internal/ingest"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

// ingestConcurrency bounds how many files are loaded and indexed at once.
// Embedding is already rate limited; this mostly bounds memory.
const ingestConcurrency = 4

// Ingestor drives files and directories through load -> chunk -> index.
type Ingestor struct {
	loader  *ingest.Loader
	chunker *ingest.Chunker
	indexer *Indexer
	logger  log.Logger
}

// IngestResult summarizes a directory ingestion run.
type IngestResult struct {
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	Chunks       int
	Duration     time.Duration
}

// NewIngestor creates an ingestor.
func NewIngestor(loader *ingest.Loader, chunker *ingest.Chunker, indexer *Indexer, logger log.Logger) *Ingestor {
	return &Ingestor{
		loader:  loader,
		chunker: chunker,
		indexer: indexer,
		logger:  logger.With("component", "ingestor"),
	}
}

// AddFile loads, chunks and indexes a single document. Returns the number
// of chunks stored.
func (in *Ingestor) AddFile(ctx context.Context, path string, docType ingest.DocType) (int, error) {
	doc, err := in.loader.Load(path, docType)
	if err != nil {
		return 0, err
	}

	chunks, err := in.chunker.Split(doc)
	if err != nil {
		return 0, err
	}

	if err := in.indexer.IndexDocument(ctx, doc, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// AddDirectory ingests every supported file under root, honoring the
// root's .gitignore. Individual file failures are logged and counted, not
// fatal; the error return is reserved for walk failures and cancellation.
func (in *Ingestor) AddDirectory(ctx context.Context, root string, docType ingest.DocType) (*IngestResult, error) {
	start := time.Now()

	paths, err := ingest.CollectFiles(root)
	if err != nil {
		return nil, fmt.Errorf("collecting files: %w", err)
	}

	result := &IngestResult{}
	results := make(chan fileOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := in.AddFile(gctx, path, docType)
			results <- fileOutcome{path: path, chunks: n, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for out := range results {
		switch {
		case out.err == nil:
			result.FilesAdded++
			result.Chunks += out.chunks
		case errors.Is(out.err, ingest.ErrUnsupportedFormat):
			result.FilesSkipped++
		default:
			result.FilesFailed++
			in.logger.Error("file ingestion failed", "path", out.path, "error", out.err)
		}
	}

	result.Duration = time.Since(start)
	in.logger.Info("directory ingested",
		"root", root,
		"added", result.FilesAdded,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"chunks", result.Chunks,
		"duration", result.Duration)
	return result, nil
}

type fileOutcome struct {
	path   string
	chunks int
	err    error
}
