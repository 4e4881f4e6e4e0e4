package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Player represents a registered user
type Player struct {
	ID               int            `db:"id" json:"id"`
	DisplayName      string         `db:"display_name" json:"display_name"`
	PINHash          sql.NullString `db:"pin_hash" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	TotalGamesPlayed int            `db:"total_games_played" json:"total_games_played"`
	TotalGamesWon    int            `db:"total_games_won" json:"total_games_won"`
	IsActive         bool           `db:"is_active" json:"is_active"`
	IsBlocked        bool           `db:"is_blocked" json:"is_blocked"`
	LastActive       sql.NullTime   `db:"last_active" json:"last_active,omitempty"`
}

// Match represents a match between two registered players
type Match struct {
	ID          int            `db:"id" json:"id"`
	MatchToken  string         `db:"match_token" json:"match_token"`
	Player1ID   int            `db:"player1_id" json:"player1_id"`
	Player2ID   int            `db:"player2_id" json:"player2_id"`
	Status      string         `db:"status" json:"status"`
	WinnerID    sql.NullInt64  `db:"winner_id" json:"winner_id,omitempty"`
	WinType     sql.NullString `db:"win_type" json:"win_type,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiryTime  time.Time      `db:"expiry_time" json:"expiry_time"`
}

// MatchTurn is one evaluated turn in a match
type MatchTurn struct {
	ID         int             `db:"id" json:"id"`
	MatchID    int             `db:"match_id" json:"match_id"`
	PlayerID   int             `db:"player_id" json:"player_id"`
	TurnNumber int             `db:"turn_number" json:"turn_number"`
	ShotData   json.RawMessage `db:"shot_data" json:"shot_data"`
	Result     json.RawMessage `db:"result" json:"result"`
	FoulReason sql.NullString  `db:"foul_reason" json:"foul_reason,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// MatchState is the stored final snapshot of a match
type MatchState struct {
	ID        int             `db:"id" json:"id"`
	MatchID   int             `db:"match_id" json:"match_id"`
	State     json.RawMessage `db:"state" json:"state"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// AdminAccount is an operator allowed into the admin API
type AdminAccount struct {
	Username     string         `db:"username" json:"username"`
	DisplayName  string         `db:"display_name" json:"display_name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	AllowedIPs   pq.StringArray `db:"allowed_ips" json:"allowed_ips"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one logged admin action
type AdminAudit struct {
	ID        int             `db:"id" json:"id"`
	Username  string          `db:"username" json:"username"`
	IP        string          `db:"ip" json:"ip"`
	Route     string          `db:"route" json:"route"`
	Action    string          `db:"action" json:"action"`
	Details   json.RawMessage `db:"details" json:"details"`
	Success   bool            `db:"success" json:"success"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// RuntimeConfig is a setting stored in Postgres that overrides the environment
type RuntimeConfig struct {
	Key         string         `db:"key" json:"key"`
	Value       string         `db:"value" json:"value"`
	ValueType   string         `db:"value_type" json:"value_type"`
	Description string         `db:"description" json:"description"`
	UpdatedBy   sql.NullString `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
