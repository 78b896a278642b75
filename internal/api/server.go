// Package api exposes the question-answering pipeline over HTTP.
//
// Endpoints:
//
//	POST /api/query     answer a question
//	POST /api/feedback  record feedback on an answer
//	GET  /health        liveness
//	GET  /ready         readiness (database reachable)
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pdiscovery/pdiscovery/internal/answer"
	"github.com/pdiscovery/pdiscovery/internal/feedback"
	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/log"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	// Generation can legitimately take most of a minute.
	writeTimeout    = 120 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second

	maxRequestBody = 64 << 10 // 64 KiB
)

// Answerer is the pipeline surface the server needs.
// *answer.Service satisfies it.
type Answerer interface {
	Ask(ctx context.Context, question string, declared guideline.Objective, docTypes ...string) (*answer.Answer, error)
}

// FeedbackRecorder records feedback. *feedback.Recorder satisfies it.
type FeedbackRecorder interface {
	Record(ctx context.Context, answerID string, useful bool, comment string) (*feedback.Entry, error)
}

// Pinger checks backend connectivity. *knowledge.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	answerer Answerer
	recorder FeedbackRecorder
	pinger   Pinger
	logger   log.Logger
	httpSrv  *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, answerer Answerer, recorder FeedbackRecorder, pinger Pinger, logger log.Logger) *Server {
	s := &Server{
		answerer: answerer,
		recorder: recorder,
		pinger:   pinger,
		logger:   logger.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// ListenAndServe blocks until the context is canceled or the listener
// fails, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
