// Package app assembles the full application from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pdiscovery/pdiscovery/db"
	"github.com/pdiscovery/pdiscovery/internal/answer"
	"github.com/pdiscovery/pdiscovery/internal/config"
	"github.com/pdiscovery/pdiscovery/internal/feedback"
	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/ingest"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
	"github.com/pdiscovery/pdiscovery/internal/log"
	"github.com/pdiscovery/pdiscovery/internal/rag"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Store     *knowledge.Store
	Ingestor  *rag.Ingestor
	Retriever *rag.Retriever
	Answerer  *answer.Service
	Feedback  *feedback.Recorder

	pool *pgxpool.Pool
}

// Setup builds the application: migrates the schema, connects the pool,
// initializes the AI runtime, and wires the pipeline. Call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// genkit.Init doesn't return an error; it panics on bad plugin config.
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, fmt.Errorf("initializing genkit: nil instance")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	app, err := build(cfg, logger, g, embedder, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

// build wires components from already-initialized infrastructure.
// Split from Setup so tests can inject mock models and a test pool.
func build(cfg *config.Config, logger log.Logger, g *genkit.Genkit, embedder ai.Embedder, pool *pgxpool.Pool) (*App, error) {
	store := knowledge.NewStore(pool, logger)

	loader := ingest.NewLoader(logger)
	chunker := ingest.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	indexer := rag.NewIndexer(embedder, store, logger,
		rag.WithBatchSize(cfg.EmbedBatchSize),
		rag.WithRateLimit(cfg.ProviderRPS))
	ingestor := rag.NewIngestor(loader, chunker, indexer, logger)

	retriever := rag.NewRetriever(embedder, store, logger,
		rag.WithTopK(cfg.TopK),
		rag.WithMinScore(cfg.MinScore))

	guidelines, err := guideline.LoadSet(cfg.GuidelinesDir)
	if err != nil {
		return nil, fmt.Errorf("loading guidelines: %w", err)
	}
	objectives, err := guideline.LoadObjectives(cfg.ObjectivesDir)
	if err != nil {
		return nil, fmt.Errorf("loading objectives: %w", err)
	}
	logger.Info("context loaded",
		"guidelines", guidelines.Len(),
		"guideline_chars", guidelines.TotalChars(),
		"objectives", len(objectives.Specs()))

	classifier := guideline.NewClassifier(embedder, objectives, logger)
	assembler := answer.NewAssembler(guidelines, objectives, cfg.MaxPromptChars)
	generator := answer.NewGenerator(g, cfg.ModelName, logger,
		answer.WithTemperature(cfg.Temperature),
		answer.WithMaxTokens(cfg.MaxTokens),
		answer.WithRateLimit(cfg.ProviderRPS))
	service := answer.NewService(retriever, classifier, assembler, generator, objectives, logger)

	recorder := feedback.NewRecorder(pool, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Ingestor:  ingestor,
		Retriever: retriever,
		Answerer:  service,
		Feedback:  recorder,
		pool:      pool,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
