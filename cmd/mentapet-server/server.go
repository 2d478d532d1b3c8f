package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/theimaginaryfoundation/mentapet/mood"
)

const maxRequestBytes = 64 << 10

// Server exposes the analysis service over HTTP.
type Server struct {
	svc       *mood.Service
	validator *mood.RequestValidator
	logger    *slog.Logger
	mux       *http.ServeMux
	newID     func() string
}

func NewServer(svc *mood.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := mood.NewRequestValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:       svc,
		validator: v,
		logger:    logger,
		mux:       http.NewServeMux(),
		newID:     func() string { return uuid.NewString() },
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST "+mood.AnalyzePath, s.handleAnalyze)
	s.mux.HandleFunc(mood.AnalyzePath, s.handleMethodNotAllowed)
}

// Handler returns the routed handler with request IDs attached.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.newID()
		w.Header().Set("X-Request-ID", id)
		logger := s.logger.With("request_id", id)
		start := time.Now()
		s.mux.ServeHTTP(w, r.WithContext(mood.ContextWithLogger(r.Context(), logger)))
		logger.Debug("request done", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r.Context())

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}
	req, err := s.validator.Decode(raw)
	if err != nil {
		logger.Info("rejected request", "error", err)
		msg := "invalid request body"
		if errors.Is(err, mood.ErrEmptyInput) {
			msg = "text is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	logger.Debug("analyze", "pet_variant", req.PetVariant, "text_len", utf8.RuneCountInString(req.Text))

	if _, canFlush := w.(http.Flusher); canFlush && mood.AcceptsStream(r.Header.Get("Accept")) {
		s.stream(w, r, req)
		return
	}
	s.document(w, r, req)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, req mood.Request) {
	logger := s.requestLogger(r.Context())
	sse, err := mood.NewSSEWriter(w)
	if err != nil {
		s.document(w, r, req)
		return
	}
	err = s.svc.Run(r.Context(), req, sse)
	if err == nil {
		return
	}
	if sse.Started() {
		// headers are gone; ending the stream without meta is the only signal left
		logger.Warn("stream ended early", "error", err, "meta_sent", sse.MetaSent())
		return
	}
	logger.Error("ai request failed", "error", err)
	writeFailure(w, err)
}

func (s *Server) document(w http.ResponseWriter, r *http.Request, req mood.Request) {
	out, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		s.requestLogger(r.Context()).Error("ai request failed", "error", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) requestLogger(ctx context.Context) *slog.Logger {
	if l, ok := mood.LoggerFromContext(ctx); ok {
		return l
	}
	return s.logger
}

func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, mood.ErrEmptyInput) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, mood.ErrorBody{
		Error:  mood.ErrUpstream.Error(),
		Source: "handler",
		Detail: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", mood.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, mood.ErrorBody{Error: msg})
}
