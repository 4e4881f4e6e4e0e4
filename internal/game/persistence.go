package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/playpool/billiards/internal/rules"
	"github.com/redis/go-redis/v9"
)

// MatchSummary is the stored form of a match: Redis snapshots and the
// final state row both use it.
type MatchSummary struct {
	ID           string            `json:"id"`
	Token        string            `json:"token"`
	Player1      MatchPlayer       `json:"player1"`
	Player2      MatchPlayer       `json:"player2"`
	Status       MatchStatus       `json:"status"`
	Winner       string            `json:"winner,omitempty"`
	WinType      string            `json:"win_type,omitempty"`
	ShotNumber   int               `json:"shot_number"`
	ExpiresAt    time.Time         `json:"expires_at"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	LastActivity time.Time         `json:"last_activity"`
	SessionID    int               `json:"session_id,omitempty"`
	World        WorldState        `json:"world"`
	LastTurn     *rules.TurnResult `json:"last_turn,omitempty"`
	LastShot     ShotParams        `json:"last_shot"`
}

func (m *Match) summaryLocked() MatchSummary {
	s := MatchSummary{
		ID:           m.ID,
		Token:        m.Token,
		Player1:      *m.Player1,
		Player2:      *m.Player2,
		Status:       m.Status,
		Winner:       m.Winner,
		WinType:      m.WinType,
		ShotNumber:   m.ShotNumber,
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		LastActivity: m.LastActivity,
		SessionID:    m.SessionID,
		World:        m.world.State(),
		LastShot:     m.lastShot,
	}
	if m.lastTurn != nil {
		t := *m.lastTurn
		s.LastTurn = &t
	}
	return s
}

// Summary captures the match for storage.
func (m *Match) Summary() MatchSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked()
}

// SaveToRedis snapshots the match via the manager.
func (m *Match) SaveToRedis() {
	if Manager == nil || Manager.rdb == nil {
		return
	}
	if err := Manager.saveMatchToRedis(m.Summary()); err != nil {
		log.Printf("[REDIS] Failed to save match %s: %v", m.ID, err)
	}
}

func matchKey(token string) string {
	return "match:" + token + ":state"
}

// saveMatchToRedis stores a match snapshot with a one hour expiry.
func (gm *GameManager) saveMatchToRedis(s MatchSummary) error {
	if gm.rdb == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return gm.rdb.SetEx(context.Background(), matchKey(s.Token), data, time.Hour).Err()
}

// loadMatchFromRedis rebuilds a match from its snapshot. A shot that was
// rolling when the snapshot was taken resumes where it was saved.
func (gm *GameManager) loadMatchFromRedis(token string) (*Match, error) {
	if gm.rdb == nil {
		return nil, errors.New("no redis client")
	}

	data, err := gm.rdb.Get(context.Background(), matchKey(token)).Result()
	if err == redis.Nil {
		return nil, errors.New("match not found in redis")
	}
	if err != nil {
		return nil, err
	}

	var s MatchSummary
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return gm.restoreMatch(s)
}

func (gm *GameManager) restoreMatch(s MatchSummary) (*Match, error) {
	world, err := RestoreWorld(s.World, gm.table, gm.params, gm.opts, gm.clock)
	if err != nil {
		return nil, fmt.Errorf("restore match %s: %w", s.ID, err)
	}
	p1, p2 := s.Player1, s.Player2
	m := &Match{
		ID:           s.ID,
		Token:        s.Token,
		Player1:      &p1,
		Player2:      &p2,
		Status:       s.Status,
		Winner:       s.Winner,
		WinType:      s.WinType,
		ShotNumber:   s.ShotNumber,
		ExpiresAt:    s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		LastActivity: time.Now(),
		SessionID:    s.SessionID,
		world:        world,
		lastTurn:     s.LastTurn,
		lastShot:     s.LastShot,
	}
	return m, nil
}

// createMatchRow persists a new match and returns its id, or 0 when there
// is no database or either seat is unregistered.
func (gm *GameManager) createMatchRow(m *Match) int {
	if gm.db == nil || m.Player1.DBPlayerID == 0 || m.Player2.DBPlayerID == 0 {
		return 0
	}
	var id int
	err := gm.db.QueryRowx(
		`INSERT INTO matches (match_token, player1_id, player2_id, status, created_at, expiry_time) VALUES ($1,$2,$3,$4,NOW(),$5) RETURNING id`,
		m.Token, m.Player1.DBPlayerID, m.Player2.DBPlayerID, string(StatusWaiting), m.ExpiresAt,
	).Scan(&id)
	if err != nil {
		log.Printf("[DB] Failed to create match row for %s: %v", m.ID, err)
		return 0
	}
	return id
}

// MarkMatchStarted records when play began.
func (gm *GameManager) MarkMatchStarted(sessionID int, startedAt time.Time) error {
	if gm == nil || gm.db == nil || sessionID == 0 {
		return nil
	}
	_, err := gm.db.Exec(`UPDATE matches SET status=$1, started_at=$2 WHERE id=$3`, string(StatusInProgress), startedAt, sessionID)
	return err
}

// RecordTurn appends one evaluated turn to the match log.
func (gm *GameManager) RecordTurn(sessionID int, playerID int, shot ShotParams, res rules.TurnResult) {
	if gm == nil || gm.db == nil || sessionID == 0 || playerID == 0 {
		return
	}

	shotData, err := json.Marshal(shot)
	if err != nil {
		log.Printf("[DB] Failed to marshal shot for match %d: %v", sessionID, err)
		return
	}
	resultData, err := json.Marshal(res)
	if err != nil {
		log.Printf("[DB] Failed to marshal turn result for match %d: %v", sessionID, err)
		return
	}

	_, err = gm.db.Exec(
		`INSERT INTO match_turns (match_id, player_id, turn_number, shot_data, result, foul_reason, created_at) VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6,NOW())`,
		sessionID, playerID, res.TurnNumber, string(shotData), string(resultData), res.Reason.String(),
	)
	if err != nil {
		log.Printf("[DB] Failed to record turn %d for match %d: %v", res.TurnNumber, sessionID, err)
	}
}

// SaveFinalMatchState stores the closing snapshot, marks the match row and
// updates both players' stats.
func (gm *GameManager) SaveFinalMatchState(s MatchSummary) {
	if gm == nil {
		return
	}
	if gm.rdb != nil {
		if err := gm.saveMatchToRedis(s); err != nil {
			log.Printf("[REDIS] Failed to save final state for %s: %v", s.ID, err)
		}
	}
	if gm.db == nil || s.SessionID == 0 {
		return
	}

	log.Printf("[DB] SaveFinalMatchState called for match=%d status=%s winner=%s", s.SessionID, s.Status, s.Winner)

	data, err := json.Marshal(s)
	if err != nil {
		log.Printf("[DB] Failed to marshal final state for match %d: %v", s.SessionID, err)
		return
	}
	if _, err := gm.db.Exec(`INSERT INTO match_states (match_id, state, created_at) VALUES ($1, $2::jsonb, NOW())`, s.SessionID, string(data)); err != nil {
		log.Printf("[DB] Failed to insert match_states for match %d: %v", s.SessionID, err)
	}

	if s.Status != StatusCompleted {
		return
	}

	var winnerDBID int
	switch s.Winner {
	case s.Player1.ID:
		winnerDBID = s.Player1.DBPlayerID
	case s.Player2.ID:
		winnerDBID = s.Player2.DBPlayerID
	}

	tx, err := gm.db.Beginx()
	if err != nil {
		log.Printf("[DB] Failed to begin tx for match %d: %v", s.SessionID, err)
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE matches SET status=$1, winner_id=NULLIF($2, 0), win_type=$3, completed_at=$4 WHERE id=$5`,
		string(s.Status), winnerDBID, s.WinType, s.CompletedAt, s.SessionID); err != nil {
		log.Printf("[DB] Failed to close match %d: %v", s.SessionID, err)
		return
	}
	if _, err := tx.Exec(`UPDATE players SET total_games_played = total_games_played + 1, last_active = NOW() WHERE id IN ($1, $2)`,
		s.Player1.DBPlayerID, s.Player2.DBPlayerID); err != nil {
		log.Printf("[DB] Failed to update played counts for match %d: %v", s.SessionID, err)
		return
	}
	if winnerDBID > 0 {
		if _, err := tx.Exec(`UPDATE players SET total_games_won = total_games_won + 1 WHERE id = $1`, winnerDBID); err != nil {
			log.Printf("[DB] Failed to update winner stats for match %d: %v", s.SessionID, err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[DB] Commit failed for match %d: %v", s.SessionID, err)
	}
}

// cancelMatchRow marks a match that expired before both players arrived.
func (gm *GameManager) cancelMatchRow(sessionID int) {
	if gm.db == nil || sessionID == 0 {
		return
	}
	if _, err := gm.db.Exec(`UPDATE matches SET status=$1, completed_at=NOW() WHERE id=$2`, string(StatusCancelled), sessionID); err != nil {
		log.Printf("[DB] Failed to cancel match %d: %v", sessionID, err)
	}
}
