package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rollcall/internal/archive"
	"github.com/dukerupert/rollcall/internal/engine"
	"github.com/dukerupert/rollcall/internal/middleware"
	"github.com/dukerupert/rollcall/internal/model"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

// Engine is what the HTTP surface needs from the orchestrator.
type Engine interface {
	Leaderboard(ctx context.Context) (*engine.Board, error)
	ManualPrompt(ctx context.Context) error
}

// Snapshots reads archived leaderboards.
type Snapshots interface {
	Fetch(ctx context.Context, date string) (*archive.Snapshot, error)
}

// Per-client budgets. Every leaderboard read costs a full vote log read and
// a paged member listing, so reads are capped too.
var (
	promptBudget = middleware.Budget{Limit: 5, Period: time.Minute}
	readBudget   = middleware.Budget{Limit: 20, Period: time.Minute}
	feedBudget   = middleware.Budget{Limit: 10, Period: time.Minute}
)

type Options struct {
	// OperatorHash is a bcrypt hash of the operator token. When empty every
	// route except /health answers 403.
	OperatorHash string
	// OriginPatterns lists the cross-origin hosts allowed on /ws.
	OriginPatterns []string
	// Snapshots is optional; without it /api/archive answers 404.
	Snapshots Snapshots
}

type Server struct {
	engine      Engine
	hub         *ws.Hub
	opts        Options
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(eng Engine, hub *ws.Hub, opts Options, logger *slog.Logger) *Server {
	return &Server{
		engine:      eng,
		hub:         hub,
		opts:        opts,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	operator := middleware.RequireOperator(s.opts.OperatorHash)
	guard := func(scope string, b middleware.Budget, h http.HandlerFunc) http.Handler {
		return s.rateLimiter.Limit(scope, b)(operator(h))
	}
	mux.Handle("GET /ws", guard("feed", feedBudget, ws.Handler(s.hub, s.opts.OriginPatterns)))
	mux.Handle("GET /api/leaderboard", guard("read", readBudget, s.leaderboardHandler))
	mux.Handle("GET /api/archive/{date}", guard("read", readBudget, s.archiveHandler))
	mux.Handle("POST /api/prompt", guard("prompt", promptBudget, s.promptHandler))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type leaderboardResponse struct {
	Date    string                   `json:"date"`
	Entries []model.LeaderboardEntry `json:"entries"`
	Text    string                   `json:"text"`
	Skipped int                      `json:"skipped_rows"`
}

func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := s.engine.Leaderboard(r.Context())
	if err != nil {
		s.logger.Error("preview leaderboard", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	entries := board.Entries
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Date:    board.Date.Format(time.DateOnly),
		Entries: entries,
		Text:    board.Text,
		Skipped: board.Skipped,
	})
}

func (s *Server) archiveHandler(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if s.opts.Snapshots == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}

	snap, err := s.opts.Snapshots.Fetch(r.Context(), date)
	if errors.Is(err, archive.ErrSnapshotNotFound) {
		writeError(w, http.StatusNotFound, "no leaderboard archived for "+date)
		return
	}
	if err != nil {
		s.logger.Error("fetch archived leaderboard", "date", date, "error", err)
		writeError(w, http.StatusBadGateway, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) promptHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ManualPrompt(r.Context()); err != nil {
		s.logger.Error("manual prompt", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "posted"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrStoreUnavailable), errors.Is(err, engine.ErrRosterUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
