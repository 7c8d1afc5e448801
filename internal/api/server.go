// Package api provides the read-only HTTP surface of the bot: health,
// Prometheus metrics and economy introspection endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/sqlite"
)

// Version is reported by /api/status.
const Version = "0.1.0"

// Server is the HTTP API server.
type Server struct {
	store          *ledger.Store
	db             *sqlite.DB
	catalog        domain.Catalog
	metricsEnabled bool
	started        time.Time
}

// NewServer creates a new API server over the economy stores.
func NewServer(store *ledger.Store, db *sqlite.DB, catalog domain.Catalog) *Server {
	return &Server{store: store, db: db, catalog: catalog, started: time.Now()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/status", s.handleStatus)

	r.Route("/api/economy", func(r chi.Router) {
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/accounts/{id}", s.handleAccount)
		r.Get("/accounts/{id}/achievements", s.handleAchievements)
		r.Get("/effects/pending", s.handlePendingEffects)
		r.Get("/purchases", s.handlePurchases)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// handleLeaderboard returns the richest accounts, default 10, cap 100.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": s.store.Top(limit),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	items := make([]domain.Item, 0, len(s.catalog))
	for id, item := range s.catalog {
		item.ID = id
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, ok := s.store.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": id,
		"name":    acc.DisplayName,
		"coins":   acc.Balance,
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, ok := s.store.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	type row struct {
		ID        domain.AchievementID `json:"id"`
		Name      string               `json:"name"`
		Progress  int64                `json:"progress"`
		Target    int64                `json:"target"`
		Reward    int64                `json:"reward"`
		Completed bool                 `json:"completed"`
	}
	rows := make([]row, 0, 3)
	for _, def := range domain.AchievementDefs() {
		out := row{ID: def.ID, Name: def.Name, Target: def.Target, Reward: def.Reward}
		if st := acc.Achievements[def.ID]; st != nil {
			out.Progress = st.Progress
			out.Completed = st.Completed
		}
		rows = append(rows, out)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      id,
		"achievements": rows,
	})
}

// handlePendingEffects lists scheduled reverts that have not fired yet.
func (s *Server) handlePendingEffects(w http.ResponseWriter, r *http.Request) {
	effects, err := s.db.ListScheduledEffects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scheduled effects")
		return
	}
	if effects == nil {
		effects = []domain.ScheduledEffect{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"effects": effects,
	})
}

// handlePurchases returns the latest audit rows, newest first.
func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	records, err := s.db.RecentPurchases(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load purchase records")
		return
	}
	if records == nil {
		records = []domain.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"purchases": records,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
