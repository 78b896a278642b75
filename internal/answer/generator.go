package answer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pdiscovery/pdiscovery/internal/log"
	"github.com/pdiscovery/pdiscovery/internal/retry"
)

const generateTimeout = 60 * time.Second

// markerPattern matches source citations like [S1] in generated text.
var markerPattern = regexp.MustCompile(`\[S(\d+)\]`)

// Generator calls the model and maps citation markers back to the chunks
// that were in the prompt.
type Generator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int
	limiter     *rate.Limiter
	retryCfg    retry.Config
	logger      log.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTemperature sets sampling temperature. Default: 0.7.
func WithTemperature(t float32) GeneratorOption {
	return func(gen *Generator) { gen.temperature = t }
}

// WithMaxTokens sets the output token cap. Default: 1024.
func WithMaxTokens(n int) GeneratorOption {
	return func(gen *Generator) {
		if n > 0 {
			gen.maxTokens = n
		}
	}
}

// WithRateLimit caps generation requests per second. Default: 2 rps.
func WithRateLimit(rps float64) GeneratorOption {
	return func(gen *Generator) {
		if rps > 0 {
			gen.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewGenerator creates a generator bound to a model.
func NewGenerator(g *genkit.Genkit, modelName string, logger log.Logger, opts ...GeneratorOption) *Generator {
	gen := &Generator{
		g:           g,
		modelName:   modelName,
		temperature: 0.7,
		maxTokens:   1024,
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.With("component", "generator"),
	}
	for _, opt := range opts {
		opt(gen)
	}
	return gen
}

// Generate produces an answer for an assembled prompt. Citations are
// extracted from the model output and resolved against prompt.Sources;
// markers the model invents that point at nothing are dropped.
func (gen *Generator) Generate(ctx context.Context, question, objective string, prompt Prompt) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	start := time.Now()
	var text string
	err := retry.Do(ctx, gen.retryCfg, func(ctx context.Context) error {
		if err := gen.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := genkit.Generate(ctx, gen.g,
			ai.WithModelName(gen.modelName),
			ai.WithSystem(prompt.System),
			ai.WithPrompt(prompt.User),
			ai.WithConfig(&ai.GenerationCommonConfig{
				Temperature:     float64(gen.temperature),
				MaxOutputTokens: gen.maxTokens,
			}),
		)
		if err != nil {
			gen.logger.Warn("generation attempt failed", "error", err)
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: model returned empty response", ErrGeneration)
	}

	ans := &Answer{
		ID:        uuid.NewString(),
		Question:  question,
		Objective: objective,
		Text:      text,
		Citations: extractCitations(text, prompt),
		CreatedAt: time.Now().UTC(),
	}

	gen.logger.Info("answer generated",
		"answer_id", ans.ID,
		"model", gen.modelName,
		"citations", len(ans.Citations),
		"chars", len(text),
		"duration", time.Since(start))
	return ans, nil
}

// extractCitations resolves every distinct [Sn] marker in the text
// against the prompt's sources, ordered by marker number.
func extractCitations(text string, prompt Prompt) []Citation {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var numbers []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(prompt.Sources) || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	citations := make([]Citation, 0, len(numbers))
	for _, n := range numbers {
		src := prompt.Sources[n-1]
		citations = append(citations, Citation{
			Marker:     fmt.Sprintf("S%d", n),
			ChunkID:    src.ID,
			DocumentID: src.DocumentID,
			Title:      src.Title,
			SourceName: src.SourceName,
			Excerpt:    excerptOf(src.Content),
			Similarity: src.Similarity,
		})
	}
	return citations
}

// excerptLen bounds citation excerpts, in runes.
const excerptLen = 240

// excerptOf returns the leading portion of a chunk's content, cut on a
// rune boundary.
func excerptOf(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLen {
		return content
	}
	return string(runes[:excerptLen]) + "…"
}
