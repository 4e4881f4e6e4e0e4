package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
	"github.com/redis/go-redis/v9"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrAlreadyInMatch = errors.New("player already in a match")
	ErrAlreadyInQueue = errors.New("player already in queue")
	ErrUnknownPlayer  = errors.New("player is not seated in this match")
	ErrMatchFinished  = errors.New("match is already over")
)

// GameManager manages all active matches and the matchmaking queue
type GameManager struct {
	matches       map[string]*Match // keyed by match ID
	tokens        map[string]string // match token -> match ID
	playerToMatch map[string]string // player ID -> match ID
	queue         []QueueEntry
	rdb           *redis.Client
	db            *sqlx.DB
	config        *config.Config
	table         *physics.Table
	params        physics.Params
	opts          rules.Options
	clock         rules.Clock
	broadcaster   Broadcaster
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
}

// QueueEntry is a player waiting for an opponent
type QueueEntry struct {
	QueueToken  string
	DBPlayerID  int
	DisplayName string
	JoinedAt    time.Time
}

// MatchResult describes a freshly paired match
type MatchResult struct {
	MatchID            string
	MatchToken         string
	Player1ID          string
	Player1Token       string
	Player1Link        string
	Player1DisplayName string
	Player2ID          string
	Player2Token       string
	Player2Link        string
	Player2DisplayName string
	ExpiresAt          time.Time
	SessionID          int
}

var (
	// Global game manager instance
	Manager *GameManager
)

// InitializeManager builds the table from config and starts the background jobs.
func InitializeManager(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) error {
	params, err := cfg.PhysicsParams()
	if err != nil {
		return err
	}
	table, err := cfg.LoadTable(params)
	if err != nil {
		return err
	}

	Manager = NewGameManager(db, rdb, cfg, table, params, nil)
	Manager.cancel()
	Manager.ctx, Manager.cancel = context.WithCancel(ctx)

	go Manager.StartExpiryChecker(Manager.ctx)
	go Manager.StartDisconnectChecker(Manager.ctx)
	Manager.StartTurnTimerWorker(Manager.ctx)
	return nil
}

// NewGameManager creates a manager. A nil clock means wall time.
func NewGameManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config, table *physics.Table, params physics.Params, clock rules.Clock) *GameManager {
	if cfg == nil {
		cfg = &config.Config{TickRateHz: 60, MatchExpiryMinutes: 10, TimerPollIntervalSeconds: 1, DisconnectGraceSeconds: 120}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GameManager{
		matches:       make(map[string]*Match),
		tokens:        make(map[string]string),
		playerToMatch: make(map[string]string),
		rdb:           rdb,
		db:            db,
		config:        cfg,
		table:         table,
		params:        params,
		opts:          cfg.RuleOptions(),
		clock:         clock,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Shutdown stops frame runners and background jobs.
func (gm *GameManager) Shutdown() {
	gm.cancel()
}

// SetBroadcaster wires the realtime layer that receives frames and turns.
func (gm *GameManager) SetBroadcaster(b Broadcaster) {
	gm.mu.Lock()
	gm.broadcaster = b
	gm.mu.Unlock()
}

func (gm *GameManager) GetConfig() *config.Config { return gm.config }
func (gm *GameManager) Table() *physics.Table     { return gm.table }
func (gm *GameManager) Params() physics.Params    { return gm.params }

// generateToken generates a secure random token
func generateToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// generateMatchID generates a unique match ID
func generateMatchID() string {
	return "match_" + generateToken(8)
}

func (gm *GameManager) matchLink(token, playerToken string) string {
	return gm.config.FrontendURL + "/m/" + token + "?pt=" + playerToken
}

func (gm *GameManager) newWorld() (*World, error) {
	return NewWorld(gm.table, gm.params, gm.opts, gm.clock)
}

// createMatchLocked builds, registers and persists a match. gm.mu must be held.
func (gm *GameManager) createMatchLocked(p1, p2 *MatchPlayer) (*Match, error) {
	world, err := gm.newWorld()
	if err != nil {
		return nil, err
	}
	expiry := time.Duration(gm.config.MatchExpiryMinutes) * time.Minute
	m := NewMatch(generateMatchID(), generateToken(16), p1, p2, world, expiry)

	gm.matches[m.ID] = m
	gm.tokens[m.Token] = m.ID
	gm.playerToMatch[p1.ID] = m.ID
	gm.playerToMatch[p2.ID] = m.ID

	m.SessionID = gm.createMatchRow(m)
	if err := gm.saveMatchToRedis(m.Summary()); err != nil {
		log.Printf("[REDIS] Failed to save match %s: %v", m.ID, err)
	}

	log.Printf("[MATCHMAKING] Match created: %s (token=%s session=%d)", m.ID, m.Token, m.SessionID)
	log.Printf("[MATCHMAKING] Player1: %s → Match: %s", p1.ID, m.ID)
	log.Printf("[MATCHMAKING] Player2: %s → Match: %s", p2.ID, m.ID)
	return m, nil
}

// JoinQueue pairs the player with the longest waiting opponent, or queues
// them. A nil result with a nil error means the player is waiting.
func (gm *GameManager) JoinQueue(entry QueueEntry) (*MatchResult, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if id, exists := gm.playerToMatch[entry.QueueToken]; exists {
		if m := gm.matches[id]; m != nil && !m.IsFinished() {
			return nil, ErrAlreadyInMatch
		}
		delete(gm.playerToMatch, entry.QueueToken)
	}
	for _, q := range gm.queue {
		if q.QueueToken == entry.QueueToken || (entry.DBPlayerID > 0 && q.DBPlayerID == entry.DBPlayerID) {
			return nil, ErrAlreadyInQueue
		}
	}

	if len(gm.queue) == 0 {
		if entry.JoinedAt.IsZero() {
			entry.JoinedAt = time.Now()
		}
		gm.queue = append(gm.queue, entry)
		return nil, nil
	}

	opponent := gm.queue[0]
	gm.queue = gm.queue[1:]

	p1 := &MatchPlayer{ID: opponent.QueueToken, DBPlayerID: opponent.DBPlayerID, DisplayName: opponent.DisplayName, PlayerToken: generateToken(16)}
	p2 := &MatchPlayer{ID: entry.QueueToken, DBPlayerID: entry.DBPlayerID, DisplayName: entry.DisplayName, PlayerToken: generateToken(16)}
	m, err := gm.createMatchLocked(p1, p2)
	if err != nil {
		gm.queue = append([]QueueEntry{opponent}, gm.queue...)
		return nil, err
	}

	return &MatchResult{
		MatchID:            m.ID,
		MatchToken:         m.Token,
		Player1ID:          p1.ID,
		Player1Token:       p1.PlayerToken,
		Player1Link:        gm.matchLink(m.Token, p1.PlayerToken),
		Player1DisplayName: p1.DisplayName,
		Player2ID:          p2.ID,
		Player2Token:       p2.PlayerToken,
		Player2Link:        gm.matchLink(m.Token, p2.PlayerToken),
		Player2DisplayName: p2.DisplayName,
		ExpiresAt:          m.ExpiresAt,
		SessionID:          m.SessionID,
	}, nil
}

// LeaveQueue removes a player from the matchmaking queue (by queue token)
func (gm *GameManager) LeaveQueue(queueToken string) bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for i, entry := range gm.queue {
		if entry.QueueToken == queueToken {
			gm.queue = append(gm.queue[:i], gm.queue[i+1:]...)
			return true
		}
	}
	return false
}

// IsPlayerInQueue checks if a player (by queue token) is waiting
func (gm *GameManager) IsPlayerInQueue(queueToken string) bool {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	for _, entry := range gm.queue {
		if entry.QueueToken == queueToken {
			return true
		}
	}
	return false
}

// GetQueueLength returns the number of players waiting
func (gm *GameManager) GetQueueLength() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.queue)
}

// CreateTestMatch creates a match between two anonymous seats for development.
func (gm *GameManager) CreateTestMatch(player1Name, player2Name string) (*Match, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	p1 := &MatchPlayer{ID: "p1_" + generateToken(4), DisplayName: player1Name, PlayerToken: generateToken(16)}
	p2 := &MatchPlayer{ID: "p2_" + generateToken(4), DisplayName: player2Name, PlayerToken: generateToken(16)}
	return gm.createMatchLocked(p1, p2)
}

// StartMatch begins play once both seats are filled.
func (gm *GameManager) StartMatch(m *Match) bool {
	if !m.Start() {
		return false
	}
	if m.StartedAt != nil {
		if err := gm.MarkMatchStarted(m.SessionID, *m.StartedAt); err != nil {
			log.Printf("[DB] MarkMatchStarted failed for match %d: %v", m.SessionID, err)
		}
	}
	gm.scheduleTurnDeadline(m)
	m.SaveToRedis()
	return true
}

// GetMatch retrieves a match by ID
func (gm *GameManager) GetMatch(matchID string) (*Match, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	m, ok := gm.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// GetMatchByToken looks in memory first, then in Redis.
func (gm *GameManager) GetMatchByToken(token string) (*Match, error) {
	gm.mu.RLock()
	if id, ok := gm.tokens[token]; ok {
		m := gm.matches[id]
		gm.mu.RUnlock()
		return m, nil
	}
	gm.mu.RUnlock()

	m, err := gm.loadMatchFromRedis(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatchNotFound, err)
	}
	log.Printf("[REDIS] Loaded match %s from Redis", token)

	gm.mu.Lock()
	defer gm.mu.Unlock()
	// Another caller may have loaded it meanwhile.
	if id, ok := gm.tokens[token]; ok {
		return gm.matches[id], nil
	}
	gm.matches[m.ID] = m
	gm.tokens[m.Token] = m.ID
	gm.playerToMatch[m.Player1.ID] = m.ID
	gm.playerToMatch[m.Player2.ID] = m.ID
	if m.Moving() {
		// saved mid-shot; finish the shot so its result is judged and sent
		gm.StartRunner(m)
	}
	return m, nil
}

// GetMatchForPlayer retrieves the active match for a player
func (gm *GameManager) GetMatchForPlayer(playerID string) (*Match, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	matchID, exists := gm.playerToMatch[playerID]
	if !exists {
		return nil, errors.New("player not in a match")
	}
	m, exists := gm.matches[matchID]
	if !exists {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// EndMatch removes a finished match from memory
func (gm *GameManager) EndMatch(matchID string) error {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	m, exists := gm.matches[matchID]
	if !exists {
		return ErrMatchNotFound
	}
	for _, p := range []*MatchPlayer{m.Player1, m.Player2} {
		// The player may already be seated in a newer match.
		if gm.playerToMatch[p.ID] == matchID {
			delete(gm.playerToMatch, p.ID)
		}
	}
	delete(gm.tokens, m.Token)
	delete(gm.matches, matchID)
	return nil
}

// GetActiveMatchCount returns the number of matches in memory
func (gm *GameManager) GetActiveMatchCount() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.matches)
}

// Backends reports which stores the manager was started with.
func (gm *GameManager) Backends() (postgres, redis bool) {
	return gm.db != nil, gm.rdb != nil
}

func (gm *GameManager) allMatches() []*Match {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	out := make([]*Match, 0, len(gm.matches))
	for _, m := range gm.matches {
		out = append(out, m)
	}
	return out
}

// ListMatches summarises every match held in memory.
func (gm *GameManager) ListMatches() []MatchSummary {
	matches := gm.allMatches()
	out := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Summary())
	}
	return out
}

// AdminEndMatch closes a match on an operator's order. A match still waiting
// for its players is cancelled; one in play is forfeited by loserID.
func (gm *GameManager) AdminEndMatch(matchID, loserID string) error {
	m, err := gm.GetMatch(matchID)
	if err != nil {
		return err
	}
	if m.Cancel() {
		log.Printf("[MATCH] Match %s cancelled by admin", m.ID)
		gm.cancelMatchRow(m.SessionID)
		gm.publishEvent(MatchEvent{Type: EventMatchCancelled, MatchToken: m.Token, MatchID: m.ID, Message: "Match cancelled by admin"})
		return gm.EndMatch(m.ID)
	}
	if m.seatOf(loserID) == 0 {
		return ErrUnknownPlayer
	}
	if !m.ForfeitByAdmin(loserID) {
		return ErrMatchFinished
	}
	gm.publishEvent(MatchEvent{Type: EventPlayerForfeit, MatchToken: m.Token, MatchID: m.ID, Player: loserID, Message: "Match ended by admin"})
	return nil
}

// StartExpiryChecker cancels matches nobody showed up for and drops
// finished matches from memory.
func (gm *GameManager) StartExpiryChecker(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gm.checkExpiredMatches(time.Now())
		}
	}
}

func (gm *GameManager) checkExpiredMatches(now time.Time) {
	for _, m := range gm.allMatches() {
		if m.IsWaiting() && now.After(m.ExpiresAt) {
			if m.Cancel() {
				log.Printf("[EXPIRY] Match %s expired before both players connected", m.ID)
				gm.cancelMatchRow(m.SessionID)
				gm.publishEvent(MatchEvent{Type: EventMatchCancelled, MatchToken: m.Token, MatchID: m.ID, Message: "Match expired"})
				gm.EndMatch(m.ID)
			}
			continue
		}
		s := m.Summary()
		if s.CompletedAt != nil && now.Sub(*s.CompletedAt) > time.Hour {
			gm.EndMatch(m.ID)
		}
	}
}

// StartDisconnectChecker forfeits players who stayed away past the grace period.
func (gm *GameManager) StartDisconnectChecker(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gm.checkDisconnectForfeits(time.Now())
		}
	}
}

func (gm *GameManager) checkDisconnectForfeits(now time.Time) {
	grace := time.Duration(gm.config.DisconnectGraceSeconds) * time.Second
	for _, m := range gm.allMatches() {
		if playerID := m.disconnectedPast(now, grace); playerID != "" {
			m.ForfeitByDisconnect(playerID)
			gm.publishEvent(MatchEvent{Type: EventPlayerForfeit, MatchToken: m.Token, MatchID: m.ID, Player: playerID, Message: "Player forfeited after disconnecting"})
		}
	}
}
