// Package testutil provides shared test infrastructure: deterministic
// AI mocks registered with Genkit and a disposable pgvector container.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// NewTestGenkit initializes a Genkit instance with no provider plugins.
// Mocks are registered on it with RegisterModel / RegisterEmbedder.
// genkit.Init doesn't return an error.
func NewTestGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()
	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("genkit.Init returned nil")
	}
	return g
}

// MockLLM provides deterministic model responses for testing. It matches
// the user prompt against registered substrings and returns the paired
// response, or the fallback when nothing matches.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []MockCall
	failWith error
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	System string
	Prompt string
}

// NewMockLLM creates a mock model with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns match
// case-insensitively as substrings of the user prompt, first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), response: response})
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the mock as "mock/test-model" and returns its
// reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var system, user string
	for _, msg := range req.Messages {
		switch msg.Role {
		case ai.RoleSystem:
			system = msg.Text()
		case ai.RoleUser:
			user = msg.Text()
		}
	}

	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return nil, err
	}

	response := m.fallback
	lower := strings.ToLower(user)
	for _, rule := range m.rules {
		if strings.Contains(lower, rule.pattern) {
			response = rule.response
			break
		}
	}
	m.calls = append(m.calls, MockCall{System: system, Prompt: user})
	m.mu.Unlock()

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(response)},
		},
	}, nil
}

// MockEmbedder provides deterministic embedding vectors. By default each
// text hashes to a stable unit vector; explicit vectors can be set for
// precise similarity control.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	dim      int
	calls    int
	failWith error
}

// NewMockEmbedder creates a mock embedder producing dim-length vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{vectors: make(map[string][]float32), dim: dim}
}

// SetVector pins the vector returned for an exact text.
func (e *MockEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (e *MockEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failWith = err
}

// Calls returns the number of Embed calls made.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// RegisterEmbedder registers the mock as "mock/test-embedder" and returns
// its reference.
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.calls++
	if e.failWith != nil {
		err := e.failWith
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: e.vectorFor(documentText(doc))}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(text string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[text]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()
	return DeterministicVector(text, e.dim)
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// DeterministicVector generates a normalized vector from text using
// SHA-256. The same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
