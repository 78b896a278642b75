// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.pdiscovery/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model selection, temperature, max output tokens, embedder model
//   - Storage: PostgreSQL connection (pgvector)
//   - Ingestion: chunk size, chunk overlap, embedding batch size
//   - Retrieval: top-k, minimum relevance score
//   - Context: guideline and objective directories, prompt budget
//
// Validation is fail-fast: Load returns an error for any missing required
// value or out-of-range knob, never a silently-applied fallback for values
// the operator must decide.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates top-k or min-score is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidPromptBudget indicates the prompt budget is too small.
	ErrInvalidPromptBudget = errors.New("invalid prompt budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidGuidelinesDir indicates the guidelines directory is not usable.
	ErrInvalidGuidelinesDir = errors.New("invalid guidelines directory")
)

const (
	// DefaultEmbedderModel outputs 768-dimension vectors, matching the
	// pgvector schema in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"
)

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName     string  `mapstructure:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`

	// Ingestion configuration
	ChunkSize      int `mapstructure:"chunk_size"`      // max chunk length in characters
	ChunkOverlap   int `mapstructure:"chunk_overlap"`   // overlap between adjacent chunks
	EmbedBatchSize int `mapstructure:"embed_batch_size"` // chunks per embedding request

	// Retrieval configuration
	TopK     int     `mapstructure:"top_k"`
	MinScore float32 `mapstructure:"min_score"` // minimum cosine similarity [0,1]

	// Context assembly
	GuidelinesDir  string `mapstructure:"guidelines_dir"`
	ObjectivesDir  string `mapstructure:"objectives_dir"`
	MaxPromptChars int    `mapstructure:"max_prompt_chars"`

	// Provider rate limiting (requests per second, applied per attempt)
	ProviderRPS float64 `mapstructure:"provider_rps"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server (serve mode)
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".pdiscovery")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* fields.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1024)

	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("embed_batch_size", 16)

	viper.SetDefault("top_k", 5)
	viper.SetDefault("min_score", 0.7)

	viper.SetDefault("guidelines_dir", "data/guidelines")
	viper.SetDefault("objectives_dir", "data/objectives")
	viper.SetDefault("max_prompt_chars", 24000)

	viper.SetDefault("provider_rps", 2.0)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "pdiscovery")
	viper.SetDefault("postgres_password", "pdiscovery_dev_password")
	viper.SetDefault("postgres_db_name", "pdiscovery")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", "127.0.0.1:3500")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via Viper;
// its presence is checked in Validate.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "PDISCOVERY_MODEL_NAME")
	mustBind("embedder_model", "PDISCOVERY_EMBEDDER_MODEL")
	mustBind("guidelines_dir", "PDISCOVERY_GUIDELINES_DIR")
	mustBind("objectives_dir", "PDISCOVERY_OBJECTIVES_DIR")
	mustBind("listen_addr", "PDISCOVERY_LISTEN_ADDR")
}

// parseDatabaseURL applies DATABASE_URL on top of the postgres_* fields.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("parsing port: %w", err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "" && db != "/" && db != "." {
		c.PostgresDBName = db
	}
	if ssl := u.Query().Get("sslmode"); ssl != "" {
		c.PostgresSSLMode = ssl
	}

	return nil
}

// PostgresURL returns the postgres:// URL form of the storage configuration,
// as consumed by golang-migrate.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     "/" + c.PostgresDBName,
		RawQuery: "sslmode=" + c.PostgresSSLMode,
	}
	return u.String()
}

// ConnectionString returns the keyword/value DSN form, as consumed by pgxpool.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}
