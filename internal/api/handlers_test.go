package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiscovery/pdiscovery/internal/answer"
	"github.com/pdiscovery/pdiscovery/internal/feedback"
	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

type stubAnswerer struct {
	ans      *answer.Answer
	err      error
	docTypes []string
}

func (s *stubAnswerer) Ask(_ context.Context, question string, _ guideline.Objective, docTypes ...string) (*answer.Answer, error) {
	s.docTypes = docTypes
	if s.err != nil {
		return nil, s.err
	}
	return s.ans, nil
}

type stubRecorder struct {
	entry *feedback.Entry
	err   error
}

func (s *stubRecorder) Record(_ context.Context, answerID string, useful bool, comment string) (*feedback.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entry, nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(answerer Answerer, recorder FeedbackRecorder, pinger Pinger) *Server {
	return NewServer("127.0.0.1:0", answerer, recorder, pinger, log.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	ans := &answer.Answer{
		ID:        "ans-1",
		Question:  "q",
		Objective: "explore-prior-findings",
		Text:      "Grounded answer [S1].",
		Citations: []answer.Citation{{
			Marker: "S1", ChunkID: "c1", DocumentID: "d1",
			Title: "Research", SourceName: "research.md",
			Excerpt: "Personalization is the top ask.", Similarity: 0.91,
		}},
		CreatedAt: time.Now().UTC(),
	}
	srv := newTestServer(&stubAnswerer{ans: ans}, &stubRecorder{}, &stubPinger{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/query",
		map[string]string{"question": "What did we learn?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AnswerID  string `json:"answer_id"`
		Answer    string `json:"answer"`
		Citations []struct {
			Marker  string `json:"marker"`
			ChunkID string `json:"chunk_id"`
			Excerpt string `json:"excerpt"`
		} `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ans-1", resp.AnswerID)
	assert.Equal(t, "Grounded answer [S1].", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "c1", resp.Citations[0].ChunkID)
	assert.Equal(t, "Personalization is the top ask.", resp.Citations[0].Excerpt)
}

func TestQueryEndpointDocTypes(t *testing.T) {
	answerer := &stubAnswerer{ans: &answer.Answer{ID: "ans-1", Text: "ok"}}
	srv := newTestServer(answerer, &stubRecorder{}, &stubPinger{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/query",
		map[string]any{"question": "q", "doc_types": []string{"interview", "research"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"interview", "research"}, answerer.docTypes)
}

func TestQueryEndpointValidation(t *testing.T) {
	srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{})

	tests := []struct {
		name string
		body any
	}{
		{"missing question", map[string]string{}},
		{"blank question", map[string]string{"question": "   "}},
		{"unknown field", map[string]string{"question": "q", "bogus": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQueryEndpointInternalError(t *testing.T) {
	srv := newTestServer(&stubAnswerer{err: errors.New("wiring broke")}, &stubRecorder{}, &stubPinger{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/query",
		map[string]string{"question": "q"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "wiring broke",
		"internal errors must not leak")
}

func TestFeedbackEndpoint(t *testing.T) {
	entry := &feedback.Entry{
		ID: "fb-1", AnswerID: "ans-1", Useful: true, CreatedAt: time.Now().UTC(),
	}
	srv := newTestServer(&stubAnswerer{}, &stubRecorder{entry: entry}, &stubPinger{})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/feedback",
		map[string]any{"answer_id": "ans-1", "useful": true, "comment": "helpful"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		FeedbackID string `json:"feedback_id"`
		AnswerID   string `json:"answer_id"`
		Useful     bool   `json:"useful"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fb-1", resp.FeedbackID)
	assert.True(t, resp.Useful)
}

func TestFeedbackEndpointValidation(t *testing.T) {
	srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{})

	tests := []struct {
		name string
		body any
	}{
		{"missing answer_id", map[string]any{"useful": true}},
		{"missing useful", map[string]any{"answer_id": "ans-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/feedback", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{})
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{err: errors.New("refused")})
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubAnswerer{}, &stubRecorder{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
