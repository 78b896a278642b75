package guideline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/pdiscovery/pdiscovery/internal/log"
)

const classifyTimeout = 15 * time.Second

// classifyThreshold is the minimum cosine similarity between a question
// and an objective's best example before the classification is trusted.
const classifyThreshold = 0.75

// Classifier infers a question's objective by comparing its embedding
// against the example questions of each objective.
//
// Example embeddings are computed lazily on first use and cached; the
// catalogue is immutable after load.
type Classifier struct {
	embedder   ai.Embedder
	objectives *Objectives
	logger     log.Logger

	mu       sync.Mutex
	examples []exampleVec // populated on first Classify
}

type exampleVec struct {
	objective Objective
	vec       []float32
}

// NewClassifier creates an objective classifier.
func NewClassifier(embedder ai.Embedder, objectives *Objectives, logger log.Logger) *Classifier {
	return &Classifier{
		embedder:   embedder,
		objectives: objectives,
		logger:     logger.With("component", "objective_classifier"),
	}
}

// Classify returns the objective whose examples best match the question.
// When no example clears the threshold, or embedding fails, it returns
// the default objective; classification is advisory, never fatal.
func (c *Classifier) Classify(ctx context.Context, question string) Objective {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	if err := c.ensureExamples(ctx); err != nil {
		c.logger.Warn("classifier falling back to default objective", "error", err)
		return DefaultObjective
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(question, nil)},
	})
	if err != nil || len(resp.Embeddings) == 0 {
		c.logger.Warn("classifier falling back to default objective", "error", err)
		return DefaultObjective
	}
	qv := resp.Embeddings[0].Embedding

	best := DefaultObjective
	var bestScore float32 = -1
	for _, ex := range c.examples {
		score := cosine(qv, ex.vec)
		if score > bestScore {
			bestScore = score
			best = ex.objective
		}
	}

	if bestScore < classifyThreshold {
		c.logger.Debug("objective classification inconclusive",
			"best", best, "score", bestScore)
		return DefaultObjective
	}

	c.logger.Debug("objective classified", "objective", best, "score", bestScore)
	return best
}

func (c *Classifier) ensureExamples(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.examples != nil {
		return nil
	}

	var docs []*ai.Document
	var owners []Objective
	for _, spec := range c.objectives.Specs() {
		for _, q := range spec.Examples {
			docs = append(docs, ai.DocumentFromText(q, nil))
			owners = append(owners, spec.Objective)
		}
	}
	if len(docs) == 0 {
		return fmt.Errorf("no objective examples to embed")
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return fmt.Errorf("embedding objective examples: %w", err)
	}
	if len(resp.Embeddings) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d examples",
			len(resp.Embeddings), len(docs))
	}

	examples := make([]exampleVec, len(docs))
	for i := range docs {
		examples[i] = exampleVec{objective: owners[i], vec: resp.Embeddings[i].Embedding}
	}
	c.examples = examples
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
