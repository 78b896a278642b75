package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pdiscovery/pdiscovery/internal/answer"
	"github.com/pdiscovery/pdiscovery/internal/feedback"
	"github.com/pdiscovery/pdiscovery/internal/guideline"
)

const maxQuestionLen = 2000

type queryRequest struct {
	Question string `json:"question"`
	// Objective is optional; when absent or unknown it is classified.
	Objective string `json:"objective,omitempty"`
	// DocTypes optionally restricts retrieval to the given document
	// types (discovery, interview, research, guideline).
	DocTypes []string `json:"doc_types,omitempty"`
}

type citationResponse struct {
	Marker     string  `json:"marker"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	SourceName string  `json:"source_name"`
	Excerpt    string  `json:"excerpt"`
	Similarity float32 `json:"similarity"`
}

type queryResponse struct {
	AnswerID  string             `json:"answer_id"`
	Objective string             `json:"objective"`
	Answer    string             `json:"answer"`
	Citations []citationResponse `json:"citations"`
	Degraded  bool               `json:"degraded,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(question) > maxQuestionLen {
		writeError(w, http.StatusBadRequest, "question is too long")
		return
	}

	ans, err := s.answerer.Ask(r.Context(), question, guideline.Objective(req.Objective), req.DocTypes...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away or the request timed out.
			writeError(w, http.StatusServiceUnavailable, "request aborted")
			return
		}
		s.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(ans))
}

type feedbackRequest struct {
	AnswerID string `json:"answer_id"`
	Useful   *bool  `json:"useful"`
	Comment  string `json:"comment,omitempty"`
}

type feedbackResponse struct {
	FeedbackID string    `json:"feedback_id"`
	AnswerID   string    `json:"answer_id"`
	Useful     bool      `json:"useful"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.AnswerID) == "" {
		writeError(w, http.StatusBadRequest, "answer_id is required")
		return
	}
	if req.Useful == nil {
		writeError(w, http.StatusBadRequest, "useful is required")
		return
	}

	entry, err := s.recorder.Record(r.Context(), req.AnswerID, *req.Useful, req.Comment)
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidEntry) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, feedbackResponse{
		FeedbackID: entry.ID,
		AnswerID:   entry.AnswerID,
		Useful:     entry.Useful,
		CreatedAt:  entry.CreatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeBody parses the JSON request body into v, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func toQueryResponse(ans *answer.Answer) queryResponse {
	resp := queryResponse{
		AnswerID:  ans.ID,
		Objective: ans.Objective,
		Answer:    ans.Text,
		Citations: make([]citationResponse, 0, len(ans.Citations)),
		Degraded:  ans.Degraded,
		CreatedAt: ans.CreatedAt,
	}
	for _, c := range ans.Citations {
		resp.Citations = append(resp.Citations, citationResponse{
			Marker:     c.Marker,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			SourceName: c.SourceName,
			Excerpt:    c.Excerpt,
			Similarity: c.Similarity,
		})
	}
	return resp
}
