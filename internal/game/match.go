package game

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

var (
	ErrMatchNotInProgress = errors.New("match is not in progress")
	ErrNotInMatch         = errors.New("player is not in this match")
)

// MatchPlayer is one seat at the table.
type MatchPlayer struct {
	ID             string     `json:"id"`
	Seat           int        `json:"seat"`
	DBPlayerID     int        `json:"db_player_id,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	PlayerToken    string     `json:"player_token"`
	Connected      bool       `json:"-"`
	ShowedUp       bool       `json:"-"`
	DisconnectedAt *time.Time `json:"-"`
}

// ShotParams is a shot as a client sends it.
type ShotParams struct {
	Angle   float64 `json:"angle"`   // radians
	Power   float64 `json:"power"`   // fraction of the maximum shot speed
	English float64 `json:"english"` // side spin, -1 to 1
	Screw   float64 `json:"screw"`   // follow (+) or draw (-), -1 to 1
}

func (s ShotParams) spin() physics.Vec2 { return physics.V(s.English, s.Screw) }

// Match is a server-side game between two seats. All access to its World
// goes through the match mutex.
type Match struct {
	ID           string
	Token        string
	Player1      *MatchPlayer
	Player2      *MatchPlayer
	Status       MatchStatus
	Winner       string
	WinType      string
	ShotNumber   int
	ExpiresAt    time.Time
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	LastActivity time.Time
	SessionID    int

	world    *World
	lastTurn *rules.TurnResult
	lastShot ShotParams
	running  bool
	mu       sync.Mutex
}

// NewMatch seats two players at a freshly racked world.
func NewMatch(id, token string, p1, p2 *MatchPlayer, world *World, expiry time.Duration) *Match {
	now := time.Now()
	p1.Seat, p2.Seat = 1, 2
	return &Match{
		ID:           id,
		Token:        token,
		Player1:      p1,
		Player2:      p2,
		Status:       StatusWaiting,
		ExpiresAt:    now.Add(expiry),
		CreatedAt:    now,
		LastActivity: now,
		world:        world,
	}
}

// Start moves a waiting match into play. Seat 1 breaks.
func (m *Match) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusWaiting || m.StartedAt != nil {
		return false
	}
	now := time.Now()
	m.StartedAt = &now
	m.Status = StatusInProgress
	m.LastActivity = now
	m.world.ResetClock()
	log.Printf("[MATCH] %s started, %s breaks", m.ID, m.Player1.ID)
	return true
}

// Shoot strikes the cue ball for playerID. The caller starts the frame runner.
func (m *Match) Shoot(playerID string, shot ShotParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusInProgress {
		return ErrMatchNotInProgress
	}
	seat := m.seatOf(playerID)
	if seat == 0 {
		return ErrNotInMatch
	}
	if err := m.world.Shoot(seat, shot.Angle, shot.Power, shot.spin()); err != nil {
		return err
	}
	m.ShotNumber++
	m.lastShot = shot
	m.LastActivity = time.Now()
	log.Printf("[MATCH] Shot #%d by %s in %s (angle=%.3f power=%.2f)", m.ShotNumber, playerID, m.ID, shot.Angle, shot.Power)
	return nil
}

// PlaceCueBall moves the cue ball during ball in hand.
func (m *Match) PlaceCueBall(playerID string, x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusInProgress {
		return ErrMatchNotInProgress
	}
	seat := m.seatOf(playerID)
	if seat == 0 {
		return ErrNotInMatch
	}
	if err := m.world.PlaceCueBall(seat, physics.V(x, y)); err != nil {
		return err
	}
	m.LastActivity = time.Now()
	return nil
}

// Tick advances the table by dt. A completed turn is logged and, on game
// over, the match is closed.
func (m *Match) Tick(dt float64) FrameReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := m.world.Tick(dt)
	if report.Truncated > 0 {
		log.Printf("[MATCH] %s hit the sub-step cap, dropped %.4f of simulated time", m.ID, report.Truncated)
	}
	if report.Turn != nil {
		m.applyTurnLocked(*report.Turn)
	}
	return report
}

// ExpireTurn ends the current turn with a timeout if its deadline has passed.
func (m *Match) ExpireTurn() (rules.TurnResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusInProgress || !m.world.TimerDue() {
		return rules.TurnResult{}, false
	}
	res, ok := m.world.TimerExpired()
	if ok {
		log.Printf("[TIMER] Turn %d timed out in %s", res.TurnNumber, m.ID)
		m.applyTurnLocked(res)
	}
	return res, ok
}

func (m *Match) applyTurnLocked(res rules.TurnResult) {
	m.lastTurn = &res
	m.LastActivity = time.Now()

	shooter := m.playerAt(res.Shooter)
	if Manager != nil && shooter != nil && shooter.DBPlayerID > 0 {
		Manager.RecordTurn(m.SessionID, shooter.DBPlayerID, m.lastShot, res)
	}

	log.Printf("[MATCH] Turn %d in %s: shooter=%d pocketed=%v foul=%v next=%d gameOver=%v",
		res.TurnNumber, m.ID, res.Shooter, res.Pocketed, res.Reason, res.NextPlayer, res.GameOver)

	if res.GameOver {
		winType := "pocket_8"
		if res.FoulCommitted || res.Winner != res.Shooter {
			winType = "illegal_8ball"
		}
		m.finishLocked(m.playerAt(res.Winner), winType)
	}
}

func (m *Match) finishLocked(winner *MatchPlayer, winType string) {
	if winner != nil {
		m.Winner = winner.ID
	}
	m.Status = StatusCompleted
	m.WinType = winType
	now := time.Now()
	m.CompletedAt = &now

	if Manager != nil {
		Manager.SaveFinalMatchState(m.summaryLocked())
	}
}

// ForfeitByDisconnect ends the match against a player who did not come back.
func (m *Match) ForfeitByDisconnect(playerID string) {
	m.forfeit(playerID, "forfeit")
}

// ForfeitByConcede ends the match against a player who gave up.
func (m *Match) ForfeitByConcede(playerID string) {
	m.forfeit(playerID, "concede")
}

// ForfeitByAdmin ends the match against playerID on an operator's order.
func (m *Match) ForfeitByAdmin(playerID string) bool {
	return m.forfeit(playerID, "admin")
}

func (m *Match) forfeit(playerID, winType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(playerID)
	if seat == 0 || m.Status == StatusCompleted || m.Status == StatusCancelled {
		return false
	}
	res := m.world.Forfeit(seat)
	m.lastTurn = &res
	log.Printf("[MATCH] %s forfeits %s (%s)", playerID, m.ID, winType)
	m.finishLocked(m.playerAt(res.Winner), winType)
	return true
}

// Cancel closes a match that never started.
func (m *Match) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status != StatusWaiting {
		return false
	}
	m.Status = StatusCancelled
	now := time.Now()
	m.CompletedAt = &now
	return true
}

// Moving reports whether balls are still rolling.
func (m *Match) Moving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world.Moving()
}

// Turn returns the current turn number.
func (m *Match) Turn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world.Turn()
}

// Deadline returns when the current turn times out; zero without a limit.
func (m *Match) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world.Deadline()
}

func (m *Match) IsInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status == StatusInProgress
}

func (m *Match) IsWaiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status == StatusWaiting
}

// IsFinished reports whether the match completed or was cancelled.
func (m *Match) IsFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status == StatusCompleted || m.Status == StatusCancelled
}

// Snapshot copies the world for rendering.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world.Snapshot()
}

// LastTurn returns the most recently completed turn, if any.
func (m *Match) LastTurn() (rules.TurnResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastTurn == nil {
		return rules.TurnResult{}, false
	}
	return *m.lastTurn, true
}

// claimRunner marks the frame runner as started; false if one is running.
func (m *Match) claimRunner() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *Match) releaseRunner() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// releaseRunnerIfIdle drops the runner flag only if no shot began since the
// last frame, so a shot taken in between is not left without a runner.
func (m *Match) releaseRunnerIfIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.world.Moving() {
		return false
	}
	m.running = false
	return true
}

// GetStateForPlayer returns the match as seen by one player.
func (m *Match) GetStateForPlayer(playerID string) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, opp := m.Player1, m.Player2
	if m.Player2.ID == playerID {
		me, opp = m.Player2, m.Player1
	}

	snap := m.world.Snapshot()
	current := m.playerAt(snap.Current)
	currentID := ""
	if current != nil && m.Status == StatusInProgress {
		currentID = current.ID
	}

	state := map[string]interface{}{
		"match_id":              m.ID,
		"token":                 m.Token,
		"status":                m.Status,
		"my_id":                 me.ID,
		"my_seat":               me.Seat,
		"opponent_id":           opp.ID,
		"my_display_name":       me.DisplayName,
		"opponent_display_name": opp.DisplayName,
		"my_connected":          me.Connected,
		"opponent_connected":    opp.Connected,
		"my_group":              snap.Groups[me.Seat-1],
		"opponent_group":        snap.Groups[opp.Seat-1],
		"my_on_eight":           snap.OnMoneyBall[me.Seat-1],
		"opponent_on_eight":     snap.OnMoneyBall[opp.Seat-1],
		"balls":                 snap.Balls,
		"phase":                 snap.Phase,
		"current_turn":          currentID,
		"my_turn":               currentID == me.ID,
		"turn_number":           snap.Turn,
		"is_break_shot":         snap.Break,
		"ball_in_hand":          snap.BallInHand,
		"kitchen_only":          snap.KitchenOnly,
		"moving":                snap.Moving,
		"time_left":             snap.TimeLeft,
		"shot_number":           m.ShotNumber,
		"winner":                m.Winner,
		"win_type":              m.WinType,
	}
	if m.lastTurn != nil {
		state["last_turn"] = *m.lastTurn
	}
	return state
}

// === Connection management ===

// SetPlayerConnected updates a seat's connection flag and reports whether
// the player had dropped earlier.
func (m *Match) SetPlayerConnected(playerID string, connected bool) (wasAway bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.playerByID(playerID); p != nil {
		wasAway = p.DisconnectedAt != nil
		p.Connected = connected
		if connected {
			p.DisconnectedAt = nil
		}
	}
	return wasAway
}

func (m *Match) BothPlayersConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Player1.Connected && m.Player2.Connected
}

func (m *Match) MarkPlayerShowedUp(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.playerByID(playerID); p != nil {
		p.ShowedUp = true
	}
}

func (m *Match) SetPlayerDisconnected(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.playerByID(playerID); p != nil {
		now := time.Now()
		p.Connected = false
		p.DisconnectedAt = &now
	}
}

// PlayerByToken resolves a seat from its player token.
func (m *Match) PlayerByToken(token string) *MatchPlayer {
	if token == "" {
		return nil
	}
	switch token {
	case m.Player1.PlayerToken:
		return m.Player1
	case m.Player2.PlayerToken:
		return m.Player2
	}
	return nil
}

// PlayerByDBID resolves a seat from a registered player's id.
func (m *Match) PlayerByDBID(id int) *MatchPlayer {
	if id <= 0 {
		return nil
	}
	switch id {
	case m.Player1.DBPlayerID:
		return m.Player1
	case m.Player2.DBPlayerID:
		return m.Player2
	}
	return nil
}

// disconnectedPast returns the id of a player gone for longer than grace.
func (m *Match) disconnectedPast(now time.Time, grace time.Duration) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status != StatusInProgress {
		return ""
	}
	for _, p := range []*MatchPlayer{m.Player1, m.Player2} {
		if !p.Connected && p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) > grace {
			return p.ID
		}
	}
	return ""
}

// === Internal helpers ===

func (m *Match) seatOf(playerID string) int {
	switch playerID {
	case m.Player1.ID:
		return 1
	case m.Player2.ID:
		return 2
	}
	return 0
}

func (m *Match) playerAt(seat int) *MatchPlayer {
	switch seat {
	case 1:
		return m.Player1
	case 2:
		return m.Player2
	}
	return nil
}

func (m *Match) playerByID(playerID string) *MatchPlayer {
	return m.playerAt(m.seatOf(playerID))
}
