package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/api/handlers"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/middleware"
	"github.com/playpool/billiards/internal/ws"
)

// SetupRoutes configures all API routes. Routes that need Postgres are only
// mounted when db is set.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	router.GET("/health", handlers.HealthCheck(cfg))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(cfg))
		v1.GET("/config", handlers.GetConfig(cfg))
		v1.GET("/table", handlers.GetTable)

		auth := handlers.AuthMiddleware(cfg)

		match := v1.Group("/match")
		{
			match.POST("/test", handlers.CreateTestMatch(cfg)) // Dev only
			match.POST("/queue", auth, handlers.JoinQueue(db, cfg))
			match.GET("/queue/status", auth, handlers.QueueStatus(cfg))
			match.DELETE("/queue", auth, handlers.LeaveQueue)
			match.GET("/:token", handlers.GetMatchState)
			match.GET("/:token/ws", middleware.WebSocketCORSCheck(cfg), ws.HandleWebSocket)
			if db != nil {
				match.GET("/:token/turns", handlers.GetMatchTurns(db))
			}
		}

		if db != nil {
			authGroup := v1.Group("/auth")
			{
				authGroup.POST("/register", handlers.Register(db, cfg))
				authGroup.POST("/login", handlers.Login(db, cfg))
				authGroup.GET("/me", auth, handlers.Me(db))
			}
			v1.GET("/player/:id/stats", handlers.GetPlayerStats(db))

			adminGroup := v1.Group("/admin")
			{
				adminGroup.POST("/login", handlers.AdminLogin(db, cfg))
				adminGroup.POST("/logout", handlers.AdminLogout)

				session := adminGroup.Group("", handlers.AdminSessionMiddleware(cfg))
				session.GET("/me", handlers.AdminMe)
				session.GET("/matches", handlers.AdminListMatches)
				session.POST("/matches/:id/end", handlers.AdminEndMatch(db))
				session.POST("/players/:id/block", handlers.AdminSetPlayerBlocked(db))
				session.GET("/config", handlers.AdminGetConfig(db))
				session.PUT("/config/:key", handlers.AdminUpdateConfig(db, cfg))
				session.GET("/audit", handlers.AdminAuditLogs(db))
			}
		} else {
			log.Println("[API] No database configured; auth, stats and admin routes disabled")
		}
	}
}
