package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/sqlite"
)

func newServer(t *testing.T) (*Server, *ledger.Store, *sqlite.DB) {
	t.Helper()
	dir := t.TempDir()
	store := ledger.Open(filepath.Join(dir, "economy.json"), zap.NewNop())
	db, err := sqlite.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalog := domain.Catalog{
		domain.ItemVIPRole: {Description: "Cargo VIP", Price: 500},
	}
	return NewServer(store, db, catalog), store, db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := get(t, srv.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestLeaderboard(t *testing.T) {
	srv, store, _ := newServer(t)
	store.Credit("u1", "Alice", 10)
	store.Credit("u2", "Bruno", 30)

	rec := get(t, srv.Handler(), "/api/economy/leaderboard?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Leaderboard []domain.RankedAccount `json:"leaderboard"`
	}
	decode(t, rec, &body)
	if len(body.Leaderboard) != 1 || body.Leaderboard[0].UserID != "u2" {
		t.Fatalf("leaderboard = %+v", body.Leaderboard)
	}
}

func TestLeaderboardBadLimit(t *testing.T) {
	srv, _, _ := newServer(t)
	for _, path := range []string{
		"/api/economy/leaderboard?limit=0",
		"/api/economy/leaderboard?limit=abc",
	} {
		if rec := get(t, srv.Handler(), path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestAccount(t *testing.T) {
	srv, store, _ := newServer(t)
	store.Credit("u1", "Alice", 42)

	rec := get(t, srv.Handler(), "/api/economy/accounts/u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
		Coins  int64  `json:"coins"`
	}
	decode(t, rec, &body)
	if body.Coins != 42 || body.Name != "Alice" {
		t.Fatalf("body = %+v", body)
	}
}

func TestAccountNotFound(t *testing.T) {
	srv, _, _ := newServer(t)
	if rec := get(t, srv.Handler(), "/api/economy/accounts/ghost"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAchievements(t *testing.T) {
	srv, store, _ := newServer(t)
	store.Credit("u1", "Alice", 1)
	store.UpdateAchievement("u1", "Alice", domain.AchMensageiro, func(st *domain.AchievementState) {
		st.Progress = 40
	})

	rec := get(t, srv.Handler(), "/api/economy/accounts/u1/achievements")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Achievements []struct {
			ID       string `json:"id"`
			Progress int64  `json:"progress"`
			Target   int64  `json:"target"`
		} `json:"achievements"`
	}
	decode(t, rec, &body)
	if len(body.Achievements) != 3 {
		t.Fatalf("achievements = %+v", body.Achievements)
	}
	for _, a := range body.Achievements {
		if a.ID == string(domain.AchMensageiro) && a.Progress != 40 {
			t.Fatalf("mensageiro progress = %d, want 40", a.Progress)
		}
	}
}

func TestCatalogEndpoint(t *testing.T) {
	srv, _, _ := newServer(t)
	rec := get(t, srv.Handler(), "/api/economy/catalog")
	var body struct {
		Items []domain.Item `json:"items"`
	}
	decode(t, rec, &body)
	if len(body.Items) != 1 || body.Items[0].ID != domain.ItemVIPRole {
		t.Fatalf("items = %+v", body.Items)
	}
}

func TestPendingEffects(t *testing.T) {
	srv, _, db := newServer(t)
	err := db.InsertScheduledEffect(domain.ScheduledEffect{
		ID:         "e1",
		Kind:       domain.EffectRemoveRole,
		GuildID:    "g1",
		TargetID:   "u1",
		ResourceID: "role-1",
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("insert effect: %v", err)
	}

	rec := get(t, srv.Handler(), "/api/economy/effects/pending")
	var body struct {
		Effects []domain.ScheduledEffect `json:"effects"`
	}
	decode(t, rec, &body)
	if len(body.Effects) != 1 || body.Effects[0].ID != "e1" {
		t.Fatalf("effects = %+v", body.Effects)
	}
}

func TestMetricsDisabledByDefault(t *testing.T) {
	srv, _, _ := newServer(t)
	if rec := get(t, srv.Handler(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEnabled(t *testing.T) {
	srv, _, _ := newServer(t)
	srv.EnableMetrics()
	if rec := get(t, srv.Handler(), "/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
