package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playpool/billiards/internal/accounts"
	"github.com/playpool/billiards/internal/admin"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
)

func newAdminRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{TickRateHz: 60, MatchExpiryMinutes: 10, JWTSecret: "test-secret"}
	game.Manager = game.NewGameManager(nil, nil, cfg, table, p, nil)
	t.Cleanup(game.Manager.Shutdown)

	router := gin.New()
	g := router.Group("/api/v1/admin", AdminSessionMiddleware(cfg))
	g.GET("/me", AdminMe)
	g.GET("/matches", AdminListMatches)
	return router, cfg
}

func adminGet(router *gin.Engine, path, cookie string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var out map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestAdminSessionRequired(t *testing.T) {
	router, cfg := newAdminRouter(t)

	if w, _ := adminGet(router, "/api/v1/admin/me", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no cookie = %d, want 401", w.Code)
	}

	player, _, err := accounts.IssueToken(cfg.JWTSecret, 3, "ann", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if w, _ := adminGet(router, "/api/v1/admin/me", player); w.Code != http.StatusUnauthorized {
		t.Errorf("player token as admin cookie = %d, want 401", w.Code)
	}

	session, err := admin.IssueSession(cfg.JWTSecret, "ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w, body := adminGet(router, "/api/v1/admin/me", session)
	if w.Code != http.StatusOK || body["username"] != "ops" {
		t.Errorf("me = %d %v", w.Code, body)
	}
}

func TestAdminListMatches(t *testing.T) {
	router, cfg := newAdminRouter(t)
	m, err := game.Manager.CreateTestMatch("ann", "ben")
	if err != nil {
		t.Fatal(err)
	}
	session, _ := admin.IssueSession(cfg.JWTSecret, "ops", time.Hour)

	w, body := adminGet(router, "/api/v1/admin/matches", session)
	if w.Code != http.StatusOK {
		t.Fatalf("matches = %d", w.Code)
	}
	rows, _ := body["matches"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("matches = %v, want one", body["matches"])
	}
	row := rows[0].(map[string]interface{})
	if row["id"] != m.ID || row["player1"] != "ann" || row["player2_id"] != m.Player2.ID {
		t.Errorf("row = %v", row)
	}
}
