package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key is required for all embedding and generation calls.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Temperature range per Gemini API documentation.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Chunking: overlap must leave room for forward progress.
	if c.ChunkSize < 100 {
		return fmt.Errorf("%w: chunk_size must be at least 100, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 100 {
		return fmt.Errorf("%w: embed_batch_size must be between 1 and 100, got %d",
			ErrInvalidChunking, c.EmbedBatchSize)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be between 0.0 and 1.0, got %.2f", ErrInvalidRetrieval, c.MinScore)
	}

	if c.MaxPromptChars < 1000 {
		return fmt.Errorf("%w: max_prompt_chars must be at least 1000, got %d",
			ErrInvalidPromptBudget, c.MaxPromptChars)
	}

	if c.GuidelinesDir == "" {
		return fmt.Errorf("%w: guidelines_dir cannot be empty", ErrInvalidGuidelinesDir)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "pdiscovery_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: postgres_ssl_mode %q is not valid, must be one of: %v",
			ErrInvalidPostgresHost, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
