// Package chi exposes the HTTP API: session lifecycle, chat, image
// detection, health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/domain"
	domchat "github.com/leafwise/tomatodoc/internal/domain/chat"
	"github.com/leafwise/tomatodoc/internal/transport/classifier"
	chatuc "github.com/leafwise/tomatodoc/internal/usecase/chat"
	healthuc "github.com/leafwise/tomatodoc/internal/usecase/health"
)

// maxUploadBytes caps leaf image uploads.
const maxUploadBytes = 10 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	chat          *chatuc.Service
	health        *healthuc.Service
	classify      *classifier.Client
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server. classify may be nil when no
// classification service is configured.
func NewServer(
	chat *chatuc.Service,
	health *healthuc.Service,
	classify *classifier.Client,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:     chat,
		health:   health,
		classify: classify,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound,
			"session_not_found", "Session not found"),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest,
			"validation_failed", ""),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusServiceUnavailable,
			"index_unavailable", "Knowledge index is unavailable; run 'tomatodoc ingest' to build it"),
		sentinelHandler(domain.ErrIndexCorrupt, http.StatusServiceUnavailable,
			"index_unavailable", "Knowledge index is unreadable; run 'tomatodoc ingest' to rebuild it"),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway,
			"generation_failed", "Answer generation failed"),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway,
			"embedding_failed", "Question vectorization failed"),
		sentinelHandler(domain.ErrClassifier, http.StatusBadGateway,
			"classifier_failed", "Image classification failed"),
	}
	return s
}

// Routes mounts all API routes on a fresh router. Middleware is the
// caller's concern.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/chat", s.postChat)
			r.Post("/reset", s.postReset)
			r.Get("/history", s.getHistory)
			r.Post("/detect", s.postDetect)
		})
	})

	r.Get("/healthz", s.getHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// createSession handles POST /api/v1/sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.chat.CreateSession()
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID()})
}

type chatRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"topK"`
	Strict   *bool  `json:"strict"`
}

type chatResponse struct {
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	DetectionUsed bool     `json:"detectionUsed"`
}

// postChat handles POST /api/v1/sessions/{sessionID}/chat.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	ans, err := s.chat.Ask(r.Context(), chatuc.AskParams{
		SessionID: chi.URLParam(r, "sessionID"),
		Question:  req.Question,
		TopK:      req.TopK,
		Strict:    req.Strict,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:        ans.Text,
		Sources:       ans.Sources,
		DetectionUsed: ans.DetectionUsed,
	})
}

// postReset handles POST /api/v1/sessions/{sessionID}/reset.
func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Reset(chi.URLParam(r, "sessionID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type turnDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type historyResponse struct {
	Turns []turnDTO `json:"turns"`
}

// getHistory handles GET /api/v1/sessions/{sessionID}/history.
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.chat.History(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	dto := make([]turnDTO, len(turns))
	for i, t := range turns {
		dto[i] = turnDTO{Role: string(t.Role), Content: t.Content}
	}
	writeJSON(w, http.StatusOK, historyResponse{Turns: dto})
}

type detectResponse struct {
	classifier.Prediction
	Staged bool `json:"staged"`
}

// postDetect handles POST /api/v1/sessions/{sessionID}/detect. The
// image is forwarded to the classification service; a recognized
// disease is staged on the session for the next chat turn.
func (s *Server) postDetect(w http.ResponseWriter, r *http.Request) {
	if s.classify == nil {
		writeError(w, http.StatusNotImplemented, "classifier_disabled",
			"No classification service is configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing file upload: "+err.Error())
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Reading upload failed: "+err.Error())
		return
	}

	pred, err := s.classify.Classify(r.Context(), header.Filename, image)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	staged := false
	if pred.LeafDetected() {
		err := s.chat.StageDetection(chi.URLParam(r, "sessionID"), domchat.Detection{
			ClassName:  pred.ClassName,
			KBSlug:     pred.KBSlug,
			HumanName:  pred.HumanName,
			Confidence: pred.Confidence,
		})
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		staged = true
	}

	writeJSON(w, http.StatusOK, detectResponse{Prediction: pred, Staged: staged})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	IndexSize int               `json:"indexSize"`
}

// getHealth handles GET /healthz.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, healthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		IndexSize: report.IndexSize,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single
// sentinel error. An empty message falls back to the sentinel's text.
func sentinelHandler(sentinel error, status int, code, message string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := message
		if msg == "" {
			msg = sentinel.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
