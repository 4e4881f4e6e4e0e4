package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/accounts"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/models"
)

type credentials struct {
	DisplayName string `json:"display_name"`
	PIN         string `json:"pin"`
}

func issueSession(c *gin.Context, cfg *config.Config, p *models.Player, status int) {
	token, exp, err := accounts.IssueToken(cfg.JWTSecret, p.ID, p.DisplayName, cfg.TokenTTL())
	if err != nil {
		log.Printf("[AUTH] Failed to sign token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{
		"token":      token,
		"expires_at": exp.Unix(),
		"player":     p,
	})
}

// Register creates a player and logs them in.
// POST /api/v1/auth/register
func Register(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and pin required"})
			return
		}

		p, err := accounts.Register(db, req.DisplayName, strings.TrimSpace(req.PIN))
		switch {
		case errors.Is(err, accounts.ErrInvalidName), errors.Is(err, accounts.ErrInvalidPIN):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, accounts.ErrNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			log.Printf("[AUTH] Register DB error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		issueSession(c, cfg, p, http.StatusCreated)
	}
}

// Login verifies a name and PIN and returns a JWT.
// POST /api/v1/auth/login
func Login(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_name and pin required"})
			return
		}

		p, err := accounts.Login(db, req.DisplayName, strings.TrimSpace(req.PIN))
		switch {
		case errors.Is(err, accounts.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case errors.Is(err, accounts.ErrPlayerBlocked):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		case err != nil:
			log.Printf("[AUTH] Login DB error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		issueSession(c, cfg, p, http.StatusOK)
	}
}

// Me returns the authenticated player.
// GET /api/v1/auth/me
func Me(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := accounts.GetPlayer(db, c.GetInt("player_id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// AuthMiddleware validates the bearer JWT and sets player_id in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		playerID, err := accounts.ParseToken(cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("player_id", playerID)
		c.Next()
	}
}
