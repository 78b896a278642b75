package answer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

// degradedNoContext is the user-visible reply when retrieval is healthy
// but nothing relevant is indexed.
const degradedNoContext = "The indexed research does not cover this question. " +
	"Consider ingesting the relevant discovery documents, or rephrasing the " +
	"question closer to the research that exists."

// degradedUnavailable is the user-visible reply when a backend failed.
// Provider and database errors never reach the user verbatim.
const degradedUnavailable = "The assistant could not complete this answer " +
	"because a backend service is unavailable. Please try again shortly."

// Retriever is the retrieval surface the service needs.
// *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, docTypes ...string) ([]knowledge.Result, error)
}

// Classifier infers the objective of a question.
// *guideline.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, question string) guideline.Objective
}

// Service runs the full question-answering pipeline.
type Service struct {
	retriever  Retriever
	classifier Classifier
	assembler  *Assembler
	generator  *Generator
	objectives *guideline.Objectives
	logger     log.Logger
}

// NewService creates the answering service.
func NewService(
	retriever Retriever,
	classifier Classifier,
	assembler *Assembler,
	generator *Generator,
	objectives *guideline.Objectives,
	logger log.Logger,
) *Service {
	return &Service{
		retriever:  retriever,
		classifier: classifier,
		assembler:  assembler,
		generator:  generator,
		objectives: objectives,
		logger:     logger.With("component", "answer_service"),
	}
}

// Ask answers a question. declared, when it names a known objective,
// skips classification; docTypes, when non-empty, restricts retrieval to
// those document types. The returned answer is always usable: backend
// failures produce a degraded answer rather than an error, so callers
// only see an error for invalid input or context cancellation.
func (s *Service) Ask(ctx context.Context, question string, declared guideline.Objective, docTypes ...string) (*Answer, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	objective := declared
	if !s.objectives.Valid(objective) {
		objective = s.classifier.Classify(ctx, question)
	}

	results, err := s.retriever.Retrieve(ctx, question, docTypes...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("retrieval failed, returning degraded answer", "error", err)
		return s.degraded(question, objective, degradedUnavailable), nil
	}

	prompt := s.assembler.Assemble(question, objective, results)

	ans, err := s.generator.Generate(ctx, question, string(objective), prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("generation failed, returning degraded answer", "error", err)
		if len(results) == 0 {
			return s.degraded(question, objective, degradedNoContext), nil
		}
		return s.degraded(question, objective, degradedUnavailable), nil
	}

	if len(results) == 0 {
		// The model answered from an empty context; mark it so callers
		// can surface the caveat.
		ans.Degraded = true
	}
	return ans, nil
}

func (s *Service) degraded(question string, objective guideline.Objective, text string) *Answer {
	return &Answer{
		ID:        uuid.NewString(),
		Question:  question,
		Objective: string(objective),
		Text:      text,
		Degraded:  true,
		CreatedAt: time.Now().UTC(),
	}
}
