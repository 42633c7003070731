// Package api exposes the game core over JSON HTTP for an external UI.
// Sessions live in an in-memory registry keyed by uuid; all game semantics
// stay in the run package, this layer only translates.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aventurer-games/dungeon-core-go/internal/history"
	"github.com/aventurer-games/dungeon-core-go/internal/leaderboard"
	"github.com/aventurer-games/dungeon-core-go/internal/run"
)

// SessionFactory builds a fresh run session for each created game.
type SessionFactory func() *run.Session

// Server handles HTTP requests
type Server struct {
	mu       sync.Mutex
	sessions map[string]*run.Session

	newSession   SessionFactory
	boards       *leaderboard.Aggregator
	archive      history.Store
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// NewServer creates a new API server. boards and archive may be nil; their
// routes then answer 503.
func NewServer(factory SessionFactory, boards *leaderboard.Aggregator, archive history.Store) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	return &Server{
		sessions:     make(map[string]*run.Session),
		newSession:   factory,
		boards:       boards,
		archive:      archive,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleCreateRun)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/cards/{index}", s.handleSelectCard)
			r.Post("/continue", s.handleContinue)
			r.Post("/exit", s.handleExit)
			r.Post("/reset", s.handleReset)
			r.Post("/resubmit-end", s.handleResubmitEnd)
			r.Post("/combat/player-attack", s.handlePlayerAttack)
			r.Post("/combat/monster-attack", s.handleMonsterAttack)
		})

		r.Get("/leaderboard/alltime", s.handleAllTime)
		r.Get("/leaderboard/weekly", s.handleWeekly)
		r.Get("/leaderboard/players/{address}/weekly-best", s.handleWeeklyBest)

		r.Get("/history", s.handleHistory)
		r.Get("/history/{address}/summary", s.handleHistorySummary)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", APIVersion)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed error=%v", err)
	}
}

// runResponse pairs a session id with its post-operation snapshot. Error is
// set when the operation succeeded locally but the ledger submit failed.
type runResponse struct {
	ID       string       `json:"id"`
	Snapshot run.Snapshot `json:"snapshot"`
	Error    *GameError   `json:"error,omitempty"`
}

func (s *Server) session(id string) *run.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// sessionOp resolves the session from the URL, applies op, and writes the
// resulting snapshot. State-machine rejections map to their statuses; a
// ledger failure after a successful local transition answers 502 with the
// advanced snapshot attached.
func (s *Server) sessionOp(w http.ResponseWriter, r *http.Request, op func(*run.Session) (run.Snapshot, error)) {
	id := chi.URLParam(r, "id")
	sess := s.session(id)
	if sess == nil {
		s.errorHandler.HandleNotFound(w, r, id)
		return
	}

	snap, err := op(sess)
	if err != nil {
		if errors.Is(err, run.ErrInvalidTransition) || errors.Is(err, run.ErrBusy) {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		// Local state already advanced; report the ledger failure without
		// hiding the snapshot.
		gameErr := NewError(ErrTypeLedgerUnavailable, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			Build()
		s.writeJSON(w, http.StatusBadGateway, runResponse{ID: id, Snapshot: snap, Error: &gameErr})
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse{ID: id, Snapshot: snap})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession()
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	snap, err := sess.Start(r.Context())
	if err != nil && !errors.Is(err, run.ErrInvalidTransition) && !errors.Is(err, run.ErrBusy) {
		gameErr := NewError(ErrTypeLedgerUnavailable, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			Build()
		s.writeJSON(w, http.StatusBadGateway, runResponse{ID: id, Snapshot: snap, Error: &gameErr})
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.logger.Printf("run_created id=%s", id)
	s.writeJSON(w, http.StatusCreated, runResponse{ID: id, Snapshot: snap})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := s.session(id)
	if sess == nil {
		s.errorHandler.HandleNotFound(w, r, id)
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse{ID: id, Snapshot: sess.Snapshot()})
}

func (s *Server) handleSelectCard(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "index", "card index must be an integer")
		return
	}
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.SelectCard(r.Context(), index)
	})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.Continue(r.Context())
	})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.Exit(r.Context())
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.Reset()
	})
}

func (s *Server) handleResubmitEnd(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.ResubmitEndRun(r.Context())
	})
}

func (s *Server) handlePlayerAttack(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.PlayerAttack(r.Context())
	})
}

func (s *Server) handleMonsterAttack(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *run.Session) (run.Snapshot, error) {
		return sess.MonsterAttack(r.Context())
	})
}

func (s *Server) handleAllTime(w http.ResponseWriter, r *http.Request) {
	if s.boards == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, GameError{Type: ErrTypeInternal, Message: "leaderboard not configured"})
		return
	}
	board, err := s.boards.AllTime(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	if s.boards == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, GameError{Type: ErrTypeInternal, Message: "leaderboard not configured"})
		return
	}
	week := 0
	if raw := r.URL.Query().Get("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorHandler.HandleValidationError(w, r, "week", "week must be a positive integer")
			return
		}
		week = n
	}
	board, err := s.boards.Weekly(r.Context(), week)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleWeeklyBest(w http.ResponseWriter, r *http.Request) {
	if s.boards == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, GameError{Type: ErrTypeInternal, Message: "leaderboard not configured"})
		return
	}
	address := chi.URLParam(r, "address")
	if address == "" {
		s.errorHandler.HandleValidationError(w, r, "address", "address is required")
		return
	}
	week := 0
	if raw := r.URL.Query().Get("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorHandler.HandleValidationError(w, r, "week", "week must be a positive integer")
			return
		}
		week = n
	}
	best, err := s.boards.PlayerWeeklyBest(r.Context(), address, week)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, best)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, GameError{Type: ErrTypeInternal, Message: "history not configured"})
		return
	}
	q := history.RunsQuery{Address: r.URL.Query().Get("address")}
	if raw := r.URL.Query().Get("page"); raw != "" {
		q.Page, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("perPage"); raw != "" {
		q.PerPage, _ = strconv.Atoi(raw)
	}
	q.SurvivedOnly = r.URL.Query().Get("survived") == "true"

	list, err := s.archive.ListRuns(q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, GameError{Type: ErrTypeInternal, Message: "history not configured"})
		return
	}
	address := chi.URLParam(r, "address")
	sum, err := s.archive.Summary(address)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": APIVersion,
		"uptime":  time.Since(s.startTime).String(),
	})
}
