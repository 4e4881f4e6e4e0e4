package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
)

// GetConfig returns the values a client needs to simulate and render locally.
// GET /api/v1/config
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tick_rate_hz":               cfg.TickRateHz,
			"turn_time_limit_seconds":    cfg.TurnTimeLimitSeconds,
			"require_rail_after_contact": cfg.RequireRailAfterContact,
			"disconnect_grace_seconds":   cfg.DisconnectGraceSeconds,
			"physics":                    game.Manager.Params(),
		})
	}
}

type pocketView struct {
	ID      int            `json:"id"`
	Name    string         `json:"name"`
	Polygon []physics.Vec2 `json:"polygon"`
}

// GetTable returns the table geometry in simulation units.
// GET /api/v1/table
func GetTable(c *gin.Context) {
	t := game.Manager.Table()
	pockets := make([]pocketView, len(t.Pockets))
	for i, p := range t.Pockets {
		pockets[i] = pocketView{ID: p.ID, Name: p.Name, Polygon: p.Polygon}
	}
	c.JSON(http.StatusOK, gin.H{
		"cushion":     t.Cushion,
		"pockets":     pockets,
		"head_spot":   t.HeadSpot,
		"foot_spot":   t.FootSpot,
		"kitchen_x":   t.KitchenX,
		"ball_radius": game.Manager.Params().BallRadius,
		"min":         t.Min,
		"max":         t.Max,
	})
}
