package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/pdiscovery/pdiscovery/internal/log"
)

const searchTimeout = 10 * time.Second

// Store provides chunk persistence and similarity search over pgvector.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a knowledge store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger.With("component", "knowledge_store"),
	}
}

// Upsert inserts or replaces a chunk and its embedding. The chunk ID is
// the conflict key, so re-ingesting a document overwrites its previous
// rows instead of duplicating them.
func (s *Store) Upsert(ctx context.Context, entry Entry, embedding []float32) error {
	const q = `
		INSERT INTO chunks
			(id, document_id, ordinal, content, title, doc_type,
			 source_name, source_path, embedding, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			content     = EXCLUDED.content,
			title       = EXCLUDED.title,
			doc_type    = EXCLUDED.doc_type,
			source_name = EXCLUDED.source_name,
			source_path = EXCLUDED.source_path,
			embedding   = EXCLUDED.embedding,
			ingested_at = EXCLUDED.ingested_at`

	_, err := s.pool.Exec(ctx, q,
		entry.ID, entry.DocumentID, entry.Ordinal, entry.Content,
		entry.Title, entry.DocType, entry.SourceName, entry.SourcePath,
		pgvector.NewVector(embedding), entry.IngestedAt)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", entry.ID, err)
	}
	return nil
}

// Search returns the entries nearest to the query vector, ordered by
// descending cosine similarity. Filtering by minimum score is the
// caller's concern.
func (s *Store) Search(ctx context.Context, embedding []float32, opts ...SearchOption) ([]Result, error) {
	cfg := searchConfig{limit: 10}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	// <=> is cosine distance; similarity = 1 - distance.
	q := `
		SELECT id, document_id, ordinal, content, title, doc_type,
		       source_name, source_path, ingested_at,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks`
	args := []any{pgvector.NewVector(embedding)}

	if len(cfg.docTypes) > 0 {
		q += ` WHERE doc_type = ANY($2)`
		args = append(args, cfg.docTypes)
	}

	q += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	results, err := rowsToResults(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("similarity search complete",
		"results", len(results), "limit", cfg.limit, "doc_types", cfg.docTypes)
	return results, nil
}

// DeleteDocumentChunks removes all chunks of a document with ordinal >=
// fromOrdinal. Re-ingestion uses this to drop stale tails when a document
// shrinks. Returns the number of rows deleted.
func (s *Store) DeleteDocumentChunks(ctx context.Context, documentID string, fromOrdinal int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1 AND ordinal >= $2`,
		documentID, fromOrdinal)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of %s: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Ping verifies database connectivity. Used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func rowsToResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ID, &r.DocumentID, &r.Ordinal, &r.Content, &r.Title,
			&r.DocType, &r.SourceName, &r.SourcePath, &r.IngestedAt,
			&r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return results, nil
}
