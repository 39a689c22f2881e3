// Package api exposes the score and ranking operations over HTTP for
// game clients that talk to the backend directly instead of through the
// chat platform.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"coindash-bot/internal/config"
	"coindash-bot/internal/ingest"
	"coindash-bot/internal/model"
	"coindash-bot/internal/store"
	"coindash-bot/internal/ws"
)

// Submitter applies a validated report. Satisfied by service.Reconciler.
type Submitter interface {
	Reconcile(ctx context.Context, report *model.ScoreReport) (*model.Outcome, error)
}

// Ranker serves leaderboard views. Satisfied by service.RankingService.
type Ranker interface {
	TopN(ctx context.Context, contextID string, limit int) ([]model.LeaderboardEntry, error)
	RankOf(ctx context.Context, contextID string, playerID int64) (int, error)
}

// Server is the HTTP surface of the score service.
type Server struct {
	submitter Submitter
	ranker    Ranker
	hub       *ws.Hub
	cfg       *config.Config
	router    chi.Router
}

// NewServer wires the routes. hub may be nil to disable /ws.
func NewServer(submitter Submitter, ranker Ranker, hub *ws.Hub, cfg *config.Config) *Server {
	s := &Server{
		submitter: submitter,
		ranker:    ranker,
		hub:       hub,
		cfg:       cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/score", s.handleSubmitScore)
	r.Get("/ranking", s.handleRanking)
	r.Get("/rank/{playerID}", s.handleRank)
	if hub != nil {
		r.Get("/ws", s.handleWS)
	}

	s.router = r
	return s
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// handleRoot redirects visitors to the hosted game page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.cfg.Game.URL, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scoreRequest is the submission body. The id and score fields tolerate
// numeric strings because some game builds post form-ish JSON.
type scoreRequest struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Score     json.Number `json:"score"`
	ContextID string      `json:"context_id,omitempty"`
}

type scoreResponse struct {
	Accepted     bool  `json:"accepted"`
	Created      bool  `json:"created"`
	PreviousBest int64 `json:"previous_best"`
	BestScore    int64 `json:"best_score"`
	Rank         int   `json:"rank,omitempty"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	playerID, err := req.ID.Int64()
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	score, err := req.Score.Int64()
	if err != nil {
		writeError(w, http.StatusBadRequest, "score must be an integer")
		return
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = s.cfg.Ranking.DefaultContext
	}

	report, err := ingest.NewReport(contextID, playerID, req.Name, score, model.SourceHTTPAPI)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.submitter.Reconcile(r.Context(), report)
	if err != nil {
		log.Error().Err(err).Str("report_id", report.ReportID).Msg("Score submission failed")
		writeError(w, http.StatusInternalServerError, "failed to record score")
		return
	}

	resp := scoreResponse{
		Accepted:     out.Accepted,
		Created:      out.Created,
		PreviousBest: out.PreviousBest,
		BestScore:    out.NewBest,
	}
	if rank, err := s.ranker.RankOf(r.Context(), contextID, playerID); err == nil {
		resp.Rank = rank
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("context_id")
	if contextID == "" {
		contextID = s.cfg.Ranking.DefaultContext
	}

	limit := s.cfg.Ranking.TopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.ranker.TopN(r.Context(), contextID, limit)
	if err != nil {
		log.Error().Err(err).Str("context_id", contextID).Msg("Failed to load ranking")
		writeError(w, http.StatusInternalServerError, "failed to load ranking")
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "playerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "player id must be an integer")
		return
	}

	contextID := r.URL.Query().Get("context_id")
	if contextID == "" {
		contextID = s.cfg.Ranking.DefaultContext
	}

	rank, err := s.ranker.RankOf(r.Context(), contextID, playerID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "player has no recorded score")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("player_id", playerID).Msg("Failed to resolve rank")
		writeError(w, http.StatusInternalServerError, "failed to resolve rank")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"context_id": contextID,
		"player_id":  playerID,
		"rank":       rank,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(s.hub, w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
