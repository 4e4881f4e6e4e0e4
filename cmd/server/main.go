package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/playpool/billiards/internal/admin"
	"github.com/playpool/billiards/internal/api"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/database"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/migrations"
	"github.com/playpool/billiards/internal/redis"
	"github.com/playpool/billiards/internal/ws"
)

func main() {
	// Initialize configuration (.env is loaded here if present)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db  *sqlx.DB
		rdb *goredis.Client
		err error
	)
	if cfg.Standalone {
		log.Println("[SERVER] Standalone mode: no Postgres, no Redis")
	} else {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if db != nil {
			defer db.Close()
		}

		// Run migrations on start if requested
		if db != nil && cfg.MigrateOnStart {
			log.Println("[MIGRATE] Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}

		// Admin-set overrides take effect on start
		if db != nil {
			if err := admin.ApplyRuntimeConfigToConfig(db, cfg); err != nil {
				log.Printf("[CONFIG] Runtime config not applied: %v", err)
			}
		}

		rdb, err = redis.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		if rdb != nil {
			defer rdb.Close()
		}
	}

	// Game manager owns matches, runners and the turn timer
	if err := game.InitializeManager(ctx, db, rdb, cfg); err != nil {
		log.Fatalf("Failed to initialize game manager: %v", err)
	}
	defer game.Manager.Shutdown()

	// Frames and turn results go out through the websocket hub
	ws.Configure(rdb, cfg)
	game.Manager.SetBroadcaster(ws.GameHub)
	ws.StartMatchEventSubscriber(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, db, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting billiards match server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[SERVER] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[SERVER] Graceful shutdown failed: %v", err)
	}
}
