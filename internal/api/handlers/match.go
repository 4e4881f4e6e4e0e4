package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/accounts"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/models"
)

// queueToken is the match-side identity of a registered player.
func queueToken(playerID int) string {
	return fmt.Sprintf("player_%d", playerID)
}

func matchLink(cfg *config.Config, token, playerToken string) string {
	return cfg.FrontendURL + "/m/" + token + "?pt=" + playerToken
}

// JoinQueue puts the authenticated player in matchmaking.
// POST /api/v1/match/queue
func JoinQueue(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetInt("player_id")
		entry := game.QueueEntry{QueueToken: queueToken(playerID), DBPlayerID: playerID}
		if db != nil {
			if p, err := accounts.GetPlayer(db, playerID); err == nil {
				if p.IsBlocked {
					c.JSON(http.StatusForbidden, gin.H{"error": accounts.ErrPlayerBlocked.Error()})
					return
				}
				entry.DisplayName = p.DisplayName
			}
		}

		res, err := game.Manager.JoinQueue(entry)
		switch {
		case errors.Is(err, game.ErrAlreadyInQueue), errors.Is(err, game.ErrAlreadyInMatch):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			log.Printf("[MATCHMAKING] JoinQueue failed for player %d: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join queue"})
			return
		}

		if res == nil {
			c.JSON(http.StatusAccepted, gin.H{
				"status":       "waiting",
				"queue_length": game.Manager.GetQueueLength(),
			})
			return
		}

		// The joiner always takes seat 2.
		c.JSON(http.StatusOK, gin.H{
			"status":        "matched",
			"match_id":      res.MatchID,
			"match_token":   res.MatchToken,
			"player_token":  res.Player2Token,
			"link":          res.Player2Link,
			"opponent_name": res.Player1DisplayName,
			"expires_at":    res.ExpiresAt,
		})
	}
}

// QueueStatus tells a waiting player whether they have been paired.
// GET /api/v1/match/queue/status
func QueueStatus(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := queueToken(c.GetInt("player_id"))
		if game.Manager.IsPlayerInQueue(token) {
			c.JSON(http.StatusOK, gin.H{"status": "waiting", "queue_length": game.Manager.GetQueueLength()})
			return
		}

		m, err := game.Manager.GetMatchForPlayer(token)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "not_queued"})
			return
		}
		me, opp := m.Player1, m.Player2
		if m.Player2.ID == token {
			me, opp = m.Player2, m.Player1
		}
		c.JSON(http.StatusOK, gin.H{
			"status":        "matched",
			"match_id":      m.ID,
			"match_token":   m.Token,
			"player_token":  me.PlayerToken,
			"link":          matchLink(cfg, m.Token, me.PlayerToken),
			"opponent_name": opp.DisplayName,
		})
	}
}

// LeaveQueue removes the authenticated player from matchmaking.
// DELETE /api/v1/match/queue
func LeaveQueue(c *gin.Context) {
	if !game.Manager.LeaveQueue(queueToken(c.GetInt("player_id"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// CreateTestMatch creates a match between two anonymous seats.
// POST /api/v1/match/test (not available in production)
func CreateTestMatch(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Environment == "production" {
			c.JSON(http.StatusForbidden, gin.H{"error": "test matches are disabled"})
			return
		}
		var req struct {
			Player1 string `json:"player1"`
			Player2 string `json:"player2"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Player1 == "" || req.Player2 == "" {
			req.Player1, req.Player2 = "Player 1", "Player 2"
		}

		m, err := game.Manager.CreateTestMatch(req.Player1, req.Player2)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"match_id":     m.ID,
			"match_token":  m.Token,
			"player1_id":   m.Player1.ID,
			"player1_link": matchLink(cfg, m.Token, m.Player1.PlayerToken),
			"player1_pt":   m.Player1.PlayerToken,
			"player2_id":   m.Player2.ID,
			"player2_link": matchLink(cfg, m.Token, m.Player2.PlayerToken),
			"player2_pt":   m.Player2.PlayerToken,
			"message":      "Test match created",
		})
	}
}

// GetMatchState returns a player's view of a match, or public info without pt.
// GET /api/v1/match/:token
func GetMatchState(c *gin.Context) {
	m, err := game.Manager.GetMatchByToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}

	p := m.PlayerByToken(c.Query("pt"))
	if p == nil {
		s := m.Summary()
		c.JSON(http.StatusOK, gin.H{
			"match_id":    s.ID,
			"status":      s.Status,
			"winner":      s.Winner,
			"win_type":    s.WinType,
			"shot_number": s.ShotNumber,
			"created_at":  s.CreatedAt,
		})
		return
	}
	c.JSON(http.StatusOK, m.GetStateForPlayer(p.ID))
}

// GetMatchTurns returns the recorded turn log of a match.
// GET /api/v1/match/:token/turns
func GetMatchTurns(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var match models.Match
		err := db.Get(&match, `SELECT id, match_token, player1_id, player2_id, status, winner_id, win_type, created_at, started_at, completed_at, expiry_time FROM matches WHERE match_token=$1`, c.Param("token"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
			return
		}

		turns := []models.MatchTurn{}
		if err := db.Select(&turns, `SELECT id, match_id, player_id, turn_number, shot_data, result, foul_reason, created_at FROM match_turns WHERE match_id=$1 ORDER BY turn_number`, match.ID); err != nil {
			log.Printf("[DB] Failed to load turns for match %d: %v", match.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"match": match, "turns": turns})
	}
}

// GetPlayerStats returns a player's record.
// GET /api/v1/player/:id/stats
func GetPlayerStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}
		p, err := accounts.GetPlayer(db, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}

		winRate := 0.0
		if p.TotalGamesPlayed > 0 {
			winRate = float64(p.TotalGamesWon) / float64(p.TotalGamesPlayed)
		}
		c.JSON(http.StatusOK, gin.H{
			"id":                 p.ID,
			"display_name":       p.DisplayName,
			"total_games_played": p.TotalGamesPlayed,
			"total_games_won":    p.TotalGamesWon,
			"win_rate":           winRate,
		})
	}
}
