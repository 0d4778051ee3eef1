package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leoaide/premium-bot/internal/storage"
)

// Server exposes read-only entitlement state over HTTP. Nothing writes
// through this surface.
type Server struct {
	storage *storage.Storage
	log     *slog.Logger

	server *http.Server
}

// NewServer creates a new web server
func NewServer(store *storage.Storage, log *slog.Logger) *Server {
	return &Server{
		storage: store,
		log:     log,
	}
}

// Start starts the server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/users/{id}/premium", s.handlePremium)
	mux.HandleFunc("GET /api/users/{id}/referrals", s.handleReferrals)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting web server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type premiumResponse struct {
	UserID       int64   `json:"user_id"`
	Premium      bool    `json:"premium"`
	PremiumUntil *string `json:"premium_until,omitempty"`
}

func (s *Server) handlePremium(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	until, has, err := s.storage.PremiumUntil(userID)
	if err != nil {
		s.log.Error("premium lookup", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := premiumResponse{UserID: userID}
	if has {
		iso := until.UTC().Format(time.RFC3339)
		resp.PremiumUntil = &iso
		resp.Premium = until.After(time.Now())
	}

	s.writeJSON(w, resp)
}

type referralsResponse struct {
	UserID    int64 `json:"user_id"`
	Total     int   `json:"total"`
	Converted int   `json:"converted"`
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	stats, err := s.storage.GetReferralStats(userID)
	if err != nil {
		s.log.Error("referral stats lookup", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, referralsResponse{
		UserID:    userID,
		Total:     stats.Total,
		Converted: stats.Converted,
	})
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}
