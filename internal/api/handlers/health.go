package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck reports uptime, match load and which stores are attached.
// Standalone servers run with neither store and still report "ok".
func HealthCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{
			"status":     "ok",
			"service":    "billiards-api",
			"version":    version,
			"uptime":     time.Since(startTime).String(),
			"tick_rate":  cfg.TickRateHz,
			"standalone": cfg.Standalone,
		}
		if game.Manager != nil {
			pg, rd := game.Manager.Backends()
			resp["active_matches"] = game.Manager.GetActiveMatchCount()
			resp["queued_players"] = game.Manager.GetQueueLength()
			resp["postgres"] = pg
			resp["redis"] = rd
		}
		c.JSON(http.StatusOK, resp)
	}
}
