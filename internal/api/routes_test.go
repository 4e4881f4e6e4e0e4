package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/playpool/billiards/internal/accounts"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
)

func newTestRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Environment:        "development",
		TickRateHz:         60,
		MatchExpiryMinutes: 10,
		JWTSecret:          "test-secret",
		TokenTTLHours:      1,
		FrontendURL:        "http://localhost:5173",
	}
	game.Manager = game.NewGameManager(nil, nil, cfg, table, p, nil)
	t.Cleanup(game.Manager.Shutdown)

	router := gin.New()
	SetupRoutes(router, nil, cfg)
	return router, cfg
}

func do(router *gin.Engine, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthAndTable(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := do(router, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", w.Code, body)
	}
	if body["postgres"] != false || body["redis"] != false {
		t.Errorf("health reports stores that were never attached: %v", body)
	}

	w, body = do(router, http.MethodGet, "/api/v1/table", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("table = %d", w.Code)
	}
	if pockets, _ := body["pockets"].([]interface{}); len(pockets) != 6 {
		t.Errorf("pockets = %v, want 6", body["pockets"])
	}
	if body["ball_radius"].(float64) <= 0 {
		t.Errorf("ball radius missing")
	}
}

func TestTestMatchAndState(t *testing.T) {
	router, _ := newTestRouter(t)

	w, created := do(router, http.MethodPost, "/api/v1/match/test", "", map[string]string{"player1": "ann", "player2": "ben"})
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d %v", w.Code, created)
	}
	token := created["match_token"].(string)

	w, public := do(router, http.MethodGet, "/api/v1/match/"+token, "", nil)
	if w.Code != http.StatusOK || public["status"] != string(game.StatusWaiting) {
		t.Errorf("public view = %d %v", w.Code, public)
	}

	w, mine := do(router, http.MethodGet, "/api/v1/match/"+token+"?pt="+created["player1_pt"].(string), "", nil)
	if w.Code != http.StatusOK || mine["my_display_name"] != "ann" || mine["opponent_display_name"] != "ben" {
		t.Errorf("player view = %d %v", w.Code, mine)
	}

	w, _ = do(router, http.MethodGet, "/api/v1/match/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown match = %d, want 404", w.Code)
	}
}

func TestQueueNeedsAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	w, _ := do(router, http.MethodPost, "/api/v1/match/queue", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	w, _ = do(router, http.MethodPost, "/api/v1/match/queue", "garbage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}
}

func TestQueuePairsTwoPlayers(t *testing.T) {
	router, cfg := newTestRouter(t)
	tok1, _, _ := accounts.IssueToken(cfg.JWTSecret, 1, "ann", cfg.TokenTTL())
	tok2, _, _ := accounts.IssueToken(cfg.JWTSecret, 2, "ben", cfg.TokenTTL())

	w, body := do(router, http.MethodPost, "/api/v1/match/queue", tok1, nil)
	if w.Code != http.StatusAccepted || body["status"] != "waiting" {
		t.Fatalf("first join = %d %v", w.Code, body)
	}
	w, _ = do(router, http.MethodPost, "/api/v1/match/queue", tok1, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("double join = %d, want 409", w.Code)
	}

	w, matched := do(router, http.MethodPost, "/api/v1/match/queue", tok2, nil)
	if w.Code != http.StatusOK || matched["status"] != "matched" {
		t.Fatalf("second join = %d %v", w.Code, matched)
	}

	w, status := do(router, http.MethodGet, "/api/v1/match/queue/status", tok1, nil)
	if w.Code != http.StatusOK || status["match_token"] != matched["match_token"] {
		t.Errorf("status for waiting player = %v, want match %v", status, matched["match_token"])
	}
	if status["player_token"] == matched["player_token"] {
		t.Errorf("both players got the same seat token")
	}
}
