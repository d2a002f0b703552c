// Package server exposes the matching engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/filtering"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/logger"
	"github.com/spigell/skillmatch/internal/matching"
	"github.com/spigell/skillmatch/internal/profile"
)

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

type loggerKey struct{}

// Engine is the part of matching.Engine the handlers use.
type Engine interface {
	MatchStored(ctx context.Context, requesterID, query string) (*matching.Outcome, error)
	SubmitNeed(ctx context.Context, userID, text string) (index.Entry, error)
	SubmitOffers(ctx context.Context, userID string, skills []*profile.Skill) ([]index.Entry, error)
}

type Server struct {
	engine  Engine
	filters filtering.Config
	logger  *zap.Logger
	mux     *http.ServeMux
}

func New(engine Engine, filters filtering.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		engine:  engine,
		filters: filters,
		logger:  log,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleAlive)
	s.mux.HandleFunc("POST /needs", s.handleNeed)
	s.mux.HandleFunc("POST /offers", s.handleOffers)
	s.mux.HandleFunc("POST /matches", s.handleMatches)

	return s
}

// ServeHTTP tags every request with an id, taken from X-Request-ID when the
// caller sent a usable one, and echoes it back.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		id = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, id)

	log := logger.WithFields(s.logger, logger.RequestFields(id)...)
	ctx := context.WithValue(r.Context(), loggerKey{}, log)

	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if log, ok := r.Context().Value(loggerKey{}).(*zap.Logger); ok {
		return log
	}
	return s.logger
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ALIVE"})
}

type needRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type entryResponse struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	SkillID string `json:"skill_id,omitempty"`
	Text    string `json:"text"`
}

func toEntryResponse(e index.Entry) entryResponse {
	return entryResponse{
		ID:      e.ID,
		UserID:  e.OwnerID,
		Kind:    string(e.Kind),
		SkillID: e.SkillID,
		Text:    e.Text,
	}
}

func (s *Server) handleNeed(w http.ResponseWriter, r *http.Request) {
	var req needRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	entry, err := s.engine.SubmitNeed(r.Context(), req.UserID, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

type offersRequest struct {
	UserID string `json:"user_id"`
	Skills any    `json:"skills"`
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleOffers"

	var req offersRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	skills, err := profile.DecodeSkills(req.Skills)
	if err != nil {
		s.fail(w, r, apperr.E(apperr.CodeInputInvalid, op, err))
		return
	}

	entries, err := s.engine.SubmitOffers(r.Context(), req.UserID, skills)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user_id": req.UserID, "entries": out})
}

type matchRequest struct {
	RequesterID string `json:"requester_id"`
	Query       string `json:"query"`
	// Limit overrides the configured result limit when positive.
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleMatches"

	var req matchRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Limit < 0 {
		s.fail(w, r, apperr.Invalid(op, "limit must not be negative"))
		return
	}

	outcome, err := s.engine.MatchStored(r.Context(), req.RequesterID, req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	cfg := s.filters
	if req.Limit > 0 {
		cfg.Limit = req.Limit
	}

	deps := filtering.Deps{
		Logger:      logger.WithFields(s.requestLogger(r), logger.MatchFields(req.RequesterID, "")...),
		RequesterID: req.RequesterID,
	}

	if err := filtering.FilterOutcome(r.Context(), &cfg, deps, filtering.Default(), outcome); err != nil {
		s.fail(w, r, apperr.E(apperr.CodeInternal, op, err))
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "server.decode"

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid(op, "request body is empty")
		}
		return apperr.Invalid(op, "malformed request body: %v", err)
	}
	if dec.More() {
		return apperr.Invalid(op, "request body must hold a single JSON object")
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, message := apperr.Public(err)
	status := statusFor(code)

	log := s.requestLogger(r).With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}

	writeJSON(w, status, map[string]string{"code": string(code), "message": message})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInputInvalid:
		return http.StatusBadRequest
	case apperr.CodeEmbeddingUnavailable, apperr.CodeIndexUnavailable, apperr.CodeClassifierUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
