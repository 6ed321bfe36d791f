package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
	generationuc "github.com/talentdex/talentdex/internal/usecase/generation"
	healthuc "github.com/talentdex/talentdex/internal/usecase/health"
	rankinguc "github.com/talentdex/talentdex/internal/usecase/ranking"
	retrievaluc "github.com/talentdex/talentdex/internal/usecase/retrieval"
)

// errorCode is a machine-readable error identifier returned to clients.
type errorCode string

const (
	codeBadRequest              errorCode = "bad_request"
	codeValidationFailed        errorCode = "validation_failed"
	codeEmptyQuery              errorCode = "empty_query"
	codeInvalidTopK             errorCode = "invalid_top_k"
	codeEmptyCollection         errorCode = "empty_collection"
	codeCollectionNotFound      errorCode = "collection_not_found"
	codeRankingNotFound         errorCode = "ranking_not_found"
	codeTaskNotFound            errorCode = "task_not_found"
	codeIndexNotBuilt           errorCode = "index_not_built"
	codeEmbeddingProviderError  errorCode = "embedding_provider_error"
	codeGenerationProviderError errorCode = "generation_provider_error"
	codeInternalError           errorCode = "internal_error"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API over the ranking, retrieval and generation
// services.
type Server struct {
	ranking       *rankinguc.Service
	retrieval     *retrievaluc.Service
	generation    *generationuc.Orchestrator
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ranking *rankinguc.Service,
	retrieval *retrievaluc.Service,
	generation *generationuc.Orchestrator,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ranking:    ranking,
		retrieval:  retrieval,
		generation: generation,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, codeEmptyQuery),
		sentinelHandler(domain.ErrInvalidTopK, http.StatusBadRequest, codeInvalidTopK),
		sentinelHandler(domain.ErrEmptyCollection, http.StatusBadRequest, codeEmptyCollection),
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, codeCollectionNotFound),
		sentinelHandler(domain.ErrTaskNotFound, http.StatusNotFound, codeTaskNotFound),
		sentinelHandler(domain.ErrIndexNotBuilt, http.StatusConflict, codeIndexNotBuilt),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, codeGenerationProviderError),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Post("/rank", s.RankCollection)
			r.Get("/ranking", s.GetRanking)
			r.Post("/query", s.SubmitQuery)
			r.Get("/status", s.CollectionStatus)
			r.Post("/index/rebuild", s.RebuildIndex)
		})
		r.Get("/query/stream/{task_id}", s.StreamQuery)
	})
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// rankRequest is the POST .../rank body.
type rankRequest struct {
	JobDescription string `json:"job_description"`
}

// rankResponse wraps the computed ranking entries.
type rankResponse struct {
	Collection string                `json:"collection"`
	Entries    []domain.RankingEntry `json:"entries"`
}

// RankCollection handles POST /api/v1/collections/{collection}/rank.
func (s *Server) RankCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entries, err := s.ranking.Rank(r.Context(), collection, req.JobDescription)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rankResponse{Collection: collection, Entries: entries})
}

// GetRanking handles GET /api/v1/collections/{collection}/ranking.
func (s *Server) GetRanking(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	entries, err := s.ranking.Table(r.Context(), collection)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, codeRankingNotFound,
				"collection has not been ranked")
			return
		}
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rankResponse{Collection: collection, Entries: entries})
}

// queryRequest is the POST .../query body.
type queryRequest struct {
	Question string         `json:"question"`
	TopK     *int           `json:"top_k,omitempty"`
	Filter   *domain.Filter `json:"filter,omitempty"`
}

// queryResponse acknowledges an accepted query task.
type queryResponse struct {
	TaskID     string             `json:"task_id"`
	Status     generationuc.State `json:"status"`
	Candidates []domain.Candidate `json:"candidates"`
}

// SubmitQuery handles POST /api/v1/collections/{collection}/query.
// Retrieval runs synchronously; answer generation is started in the
// background and consumed via the stream endpoint.
func (s *Server) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	topK := retrievaluc.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	candidates, err := s.retrieval.Retrieve(r.Context(), collection, req.Question, topK, req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	taskID := s.generation.Submit(generationuc.SubmitRequest{
		Collection:       collection,
		Question:         req.Question,
		CacheKey:         s.retrieval.QueryKey(collection, req.Question, topK, req.Filter),
		Candidates:       candidates,
		RankingAvailable: s.retrieval.RankingAvailable(collection),
	})

	state, err := s.generation.TaskState(taskID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, queryResponse{
		TaskID:     taskID,
		Status:     state,
		Candidates: candidates,
	})
}

// streamChunk is one SSE data payload.
type streamChunk struct {
	Text string `json:"text"`
}

// streamError is the SSE error event payload.
type streamError struct {
	Error string `json:"error"`
}

// StreamQuery handles GET /api/v1/query/stream/{task_id} as an SSE stream.
// The stream replays chunks already produced, follows the live task, and
// ends with an error event when generation failed.
func (s *Server) StreamQuery(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}

	chunks, err := s.generation.Attach(r.Context(), taskID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Err != "" {
			writeSSE(w, "error", streamError{Error: chunk.Err})
			flusher.Flush()
			return
		}
		writeSSE(w, "", streamChunk{Text: chunk.Text})
		flusher.Flush()
	}

	writeSSE(w, "done", struct{}{})
	flusher.Flush()
}

// CollectionStatus handles GET /api/v1/collections/{collection}/status.
func (s *Server) CollectionStatus(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	status, err := s.retrieval.Status(r.Context(), collection)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// RebuildIndex handles POST /api/v1/collections/{collection}/index/rebuild.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	status, err := s.retrieval.Rebuild(r.Context(), collection)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// writeSSE writes one server-sent event. An empty event name emits a plain
// data frame.
func writeSSE(w http.ResponseWriter, event string, v any) {
	if event != "" {
		_, _ = w.Write([]byte("event: " + event + "\n"))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrInvalidTopK,
		domain.ErrEmptyCollection,
		domain.ErrCollectionNotFound,
		domain.ErrTaskNotFound,
		domain.ErrIndexNotBuilt,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
