// cmd/pipeline-runner/api.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
	"research-pipeline/internal/pipeline"
)

// apiServer exposes the session operations over HTTP. Started runs execute in
// the background against the server's base context so a dropped client
// connection cannot cancel a pipeline mid-flight.
type apiServer struct {
	orch    *pipeline.Orchestrator
	baseCtx context.Context
	logger  logger.Logger
	runs    sync.WaitGroup
}

func newAPIServer(orch *pipeline.Orchestrator, baseCtx context.Context, log logger.Logger) *apiServer {
	return &apiServer{
		orch:    orch,
		baseCtx: baseCtx,
		logger:  log.With(map[string]interface{}{"component": "api"}),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleStart)
	mux.HandleFunc("POST /v1/sessions/{id}/run", s.handleRun)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleStatus)
	return mux
}

// wait blocks until background runs have drained.
func (s *apiServer) wait() {
	s.runs.Wait()
}

type startRequest struct {
	Topic   string                 `json:"topic"`
	Context models.AnalysisContext `json:"context"`
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	sess, err := s.orch.StartSession(r.Context(), req.Topic, req.Context)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.orch.Run(s.baseCtx, sess.ID); err != nil {
			s.logger.WithError(err).Error("background run failed", map[string]interface{}{
				"sessionId": sess.ID,
			})
		}
	}()

	writeJSON(w, http.StatusAccepted, sess)
}

// handleRun resumes a session synchronously and returns its terminal state.
func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *apiServer) writeStoreError(w http.ResponseWriter, err error) {
	if errors.CodeOf(err) == errors.ErrCodeSessionNotFound {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.WithError(err).Error("request failed", nil)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
