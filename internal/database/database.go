package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool used for accounts and the match log.
// An empty URL means the server runs without Postgres: nil is returned
// and the DB-backed routes stay unmounted.
func Connect(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		log.Println("[DB] DATABASE_URL not set; running without Postgres")
		return nil, nil
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Println("[DB] Connected to Postgres")
	return db, nil
}
