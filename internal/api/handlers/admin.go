package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/admin"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
)

const adminSessionTTL = 4 * time.Hour
const adminCookieName = "admin_session"

// AdminLogin checks username/password and sets the session cookie.
// POST /api/v1/admin/login
func AdminLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		username := strings.TrimSpace(req.Username)

		if _, err := admin.ValidateAdminCredentials(db, username, req.Password, c.ClientIP()); err != nil {
			log.Printf("[ADMIN] Login failed for username %s: %v", username, err)
			admin.LogAdminAction(db, username, c.ClientIP(), c.FullPath(), "login", nil, false)
			status := http.StatusUnauthorized
			if errors.Is(err, admin.ErrIPNotAllowed) {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := admin.IssueSession(cfg.JWTSecret, username, adminSessionTTL)
		if err != nil {
			log.Printf("[ADMIN] Failed to sign session: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		secure := cfg.Environment == "production"
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, token, int(adminSessionTTL.Seconds()), "/api/v1/admin", "", secure, true)

		admin.LogAdminAction(db, username, c.ClientIP(), c.FullPath(), "login", nil, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// AdminLogout clears the admin session cookie
func AdminLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(adminCookieName, "", -1, "/api/v1/admin", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AdminMe returns the current admin session info
func AdminMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": c.GetString("admin_username")})
}

// AdminSessionMiddleware validates the admin session cookie
func AdminSessionMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		username, err := admin.ParseSession(cfg.JWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}
		c.Set("admin_username", username)
		c.Next()
	}
}

// AdminListMatches lists the matches held by this server.
// GET /api/v1/admin/matches
func AdminListMatches(c *gin.Context) {
	type row struct {
		ID         string           `json:"id"`
		Token      string           `json:"token"`
		Status     game.MatchStatus `json:"status"`
		Player1ID  string           `json:"player1_id"`
		Player1    string           `json:"player1"`
		Player2ID  string           `json:"player2_id"`
		Player2    string           `json:"player2"`
		Winner     string           `json:"winner,omitempty"`
		ShotNumber int              `json:"shot_number"`
		CreatedAt  time.Time        `json:"created_at"`
	}
	summaries := game.Manager.ListMatches()
	rows := make([]row, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, row{
			ID:         s.ID,
			Token:      s.Token,
			Status:     s.Status,
			Player1ID:  s.Player1.ID,
			Player1:    s.Player1.DisplayName,
			Player2ID:  s.Player2.ID,
			Player2:    s.Player2.DisplayName,
			Winner:     s.Winner,
			ShotNumber: s.ShotNumber,
			CreatedAt:  s.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"matches": rows, "count": len(rows)})
}

// AdminEndMatch cancels a waiting match or forfeits a running one.
// POST /api/v1/admin/matches/:id/end {"loser": "<player id>"}
func AdminEndMatch(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Loser string `json:"loser"`
		}
		c.ShouldBindJSON(&req)
		matchID := c.Param("id")
		username := c.GetString("admin_username")

		err := game.Manager.AdminEndMatch(matchID, req.Loser)
		admin.LogAdminAction(db, username, c.ClientIP(), c.FullPath(), "end_match",
			map[string]interface{}{"match_id": matchID, "loser": req.Loser}, err == nil)
		switch {
		case errors.Is(err, game.ErrMatchNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, game.ErrUnknownPlayer):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, game.ErrMatchFinished):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"ok": true})
		}
	}
}

// AdminSetPlayerBlocked blocks or unblocks a player.
// POST /api/v1/admin/players/:id/block {"blocked": true}
func AdminSetPlayerBlocked(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}
		var req struct {
			Blocked bool `json:"blocked"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		err = admin.SetPlayerBlocked(db, id, req.Blocked)
		admin.LogAdminAction(db, c.GetString("admin_username"), c.ClientIP(), c.FullPath(), "set_blocked",
			map[string]interface{}{"player_id": id, "blocked": req.Blocked}, err == nil)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		case err != nil:
			log.Printf("[ADMIN] Block player %d failed: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		default:
			c.JSON(http.StatusOK, gin.H{"player_id": id, "blocked": req.Blocked})
		}
	}
}

// AdminGetConfig lists runtime config entries.
// GET /api/v1/admin/config
func AdminGetConfig(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		configs, err := admin.GetAllRuntimeConfig(db)
		if err != nil {
			log.Printf("[ADMIN] Failed to load runtime config: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"config": configs})
	}
}

// AdminUpdateConfig stores a runtime config value; it applies on next start.
// PUT /api/v1/admin/config/:key {"value": "..."}
func AdminUpdateConfig(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Value string `json:"value" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value required"})
			return
		}
		key := c.Param("key")
		username := c.GetString("admin_username")

		err := admin.UpdateRuntimeConfigValue(db, cfg, key, req.Value, username)
		admin.LogAdminAction(db, username, c.ClientIP(), c.FullPath(), "update_config",
			map[string]interface{}{"key": key, "value": req.Value}, err == nil)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value, "applies": "on restart"})
	}
}

// AdminAuditLogs pages through the admin audit log.
// GET /api/v1/admin/audit?limit=50&offset=0
func AdminAuditLogs(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}
		logs, err := admin.GetAdminAuditLogs(db, limit, offset)
		if err != nil {
			log.Printf("[ADMIN] Failed to load audit log: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs, "limit": limit, "offset": offset})
	}
}
