// Package web exposes the scheduling core over a JSON HTTP API. It is a thin
// transport: every decision lives in the review, stats, srs, and storage
// packages.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hmaged/hifz/internal/config"
	"github.com/hmaged/hifz/internal/domain"
	"github.com/hmaged/hifz/internal/review"
	"github.com/hmaged/hifz/internal/srs"
	"github.com/hmaged/hifz/internal/stats"
	"github.com/hmaged/hifz/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db     *storage.DB
	driver *review.Driver
	stats  *stats.Accumulator
	cfg    config.Config
	params srs.Params
	log    *slog.Logger
	router *http.ServeMux
	now    func() time.Time

	// One review session at a time; reviews are strictly sequential.
	mu      sync.Mutex
	session *review.Session
}

// NewServer creates and configures a new server. now may be nil to use
// time.Now.
func NewServer(db *storage.DB, cfg config.Config, log *slog.Logger, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	params := cfg.Params()
	acc := stats.New(db, cfg.Goals.DailyCards, now)
	s := &Server{
		db:     db,
		driver: review.NewDriver(db, params, acc, log, now),
		stats:  acc,
		cfg:    cfg,
		params: params,
		log:    log,
		router: http.NewServeMux(),
		now:    now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/decks", s.handleDecks())
	s.router.HandleFunc("/decks/", s.handleDeckByID())
	s.router.HandleFunc("/cards", s.handlePostCard())
	s.router.HandleFunc("/session", s.handleStartSession())
	s.router.HandleFunc("/session/rate", s.handleRate())
	s.router.HandleFunc("/stats", s.handleStats())
}

type deckRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleDecks handles listing and creating decks.
func (s *Server) handleDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			decks, err := s.db.Decks(r.Context())
			if err != nil {
				s.internalError(w, "listing decks", err)
				return
			}
			s.respond(w, http.StatusOK, map[string]any{"decks": decks})
		case http.MethodPost:
			var req deckRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
				http.Error(w, "Deck name is required", http.StatusBadRequest)
				return
			}
			id, err := s.db.CreateDeck(r.Context(), req.Name, req.Description)
			if err != nil {
				s.internalError(w, "creating deck", err)
				return
			}
			s.respond(w, http.StatusCreated, map[string]any{"id": id})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// handleDeckByID handles GET/DELETE on /decks/{id} and GET on
// /decks/{id}/cards.
func (s *Server) handleDeckByID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/decks/")
		idStr, sub, _ := strings.Cut(rest, "/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid deck ID", http.StatusBadRequest)
			return
		}

		switch {
		case sub == "cards" && r.Method == http.MethodGet:
			cards, err := s.db.CardsByDeck(r.Context(), id)
			if err != nil {
				s.internalError(w, "listing cards", err)
				return
			}
			s.respond(w, http.StatusOK, map[string]any{"cards": cards})
		case sub == "" && r.Method == http.MethodGet:
			deck, err := s.db.Deck(r.Context(), id)
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				s.internalError(w, "finding deck", err)
				return
			}
			s.respond(w, http.StatusOK, deck)
		case sub == "" && r.Method == http.MethodDelete:
			if err := s.db.DeleteDeck(r.Context(), id); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.NotFound(w, r)
					return
				}
				s.internalError(w, "deleting deck", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

type cardRequest struct {
	DeckID          int64  `json:"deck_id"`
	Front           string `json:"front"`
	Back            string `json:"back"`
	ExampleSentence string `json:"example_sentence"`
	Pronunciation   string `json:"pronunciation"`
}

// handlePostCard creates a card; its retention state is created with it.
func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req cardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeckID == 0 || req.Front == "" || req.Back == "" {
			http.Error(w, "deck_id, front, and back are required", http.StatusBadRequest)
			return
		}
		card := domain.Card{
			DeckID:          req.DeckID,
			Front:           req.Front,
			Back:            req.Back,
			ExampleSentence: req.ExampleSentence,
			Pronunciation:   req.Pronunciation,
		}
		id, err := s.db.CreateCard(r.Context(), card, s.params.NewState(0, s.now()))
		if err != nil {
			s.internalError(w, "creating card", err)
			return
		}
		s.respond(w, http.StatusCreated, map[string]any{"id": id})
	}
}

type sessionView struct {
	State    review.SessionState `json:"state"`
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Card     *domain.Card        `json:"card,omitempty"`
	Reviewed int                 `json:"reviewed"`
}

func viewOf(sess *review.Session) sessionView {
	v := sessionView{State: sess.State(), Reviewed: sess.Totals().Reviewed}
	if card, ok := sess.Current(); ok {
		v.Card = &card
		v.Index, v.Total = sess.Position()
	}
	return v
}

// handleStartSession begins a review session over the current due set.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()

		sess, err := s.driver.StartSession(r.Context(), s.cfg.Review.BatchSize)
		if err != nil {
			s.internalError(w, "starting session", err)
			return
		}
		s.session = sess
		s.respond(w, http.StatusOK, viewOf(sess))
	}
}

type rateRequest struct {
	CardIndex int           `json:"card_index"`
	Rating    domain.Rating `json:"rating"`
}

// handleRate applies one rating to the active session.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req rateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.session == nil {
			http.Error(w, "No active session", http.StatusConflict)
			return
		}
		_, err := s.driver.Rate(r.Context(), s.session, req.CardIndex, req.Rating)
		switch {
		case errors.Is(err, domain.ErrInvalidRating):
			http.Error(w, "Rating must be easy, good, or hard", http.StatusBadRequest)
			return
		case errors.Is(err, review.ErrStaleIndex):
			http.Error(w, "Card index out of step with session", http.StatusConflict)
			return
		case err != nil:
			s.internalError(w, "rating card", err)
			return
		}
		s.respond(w, http.StatusOK, viewOf(s.session))
	}
}

// handleStats reports the day streak, daily-goal progress, and due count.
func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		streak, err := s.stats.Streak(r.Context())
		if err != nil {
			s.internalError(w, "computing streak", err)
			return
		}
		reviewed, goal, err := s.stats.DailyProgress(r.Context())
		if err != nil {
			s.internalError(w, "computing daily progress", err)
			return
		}
		due, err := s.db.CountDue(r.Context(), s.now())
		if err != nil {
			s.internalError(w, "counting due cards", err)
			return
		}
		s.respond(w, http.StatusOK, map[string]any{
			"streak":         streak,
			"today_reviewed": reviewed,
			"daily_goal":     goal,
			"cards_due":      due,
		})
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error("request failed", "action", action, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
