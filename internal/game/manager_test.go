package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames []Frame
	turns  []rules.TurnResult
	events []MatchEvent
}

func (b *recordingBroadcaster) BroadcastFrame(m *Match, f Frame) {
	b.mu.Lock()
	b.frames = append(b.frames, f)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) BroadcastTurn(m *Match, res rules.TurnResult) {
	b.mu.Lock()
	b.turns = append(b.turns, res)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) HandleMatchEvent(ev MatchEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func newTestManager(t *testing.T, cfg *config.Config, clock rules.Clock) *GameManager {
	t.Helper()
	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{TickRateHz: 60, MatchExpiryMinutes: 10, DisconnectGraceSeconds: 120}
	}
	gm := NewGameManager(nil, nil, cfg, table, p, clock)
	t.Cleanup(gm.Shutdown)
	return gm
}

func startedMatch(t *testing.T, gm *GameManager) *Match {
	t.Helper()
	m, err := gm.CreateTestMatch("alice", "bob")
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if !gm.StartMatch(m) {
		t.Fatalf("match did not start")
	}
	return m
}

func TestJoinQueuePairsInOrder(t *testing.T) {
	gm := newTestManager(t, nil, nil)

	res, err := gm.JoinQueue(QueueEntry{QueueToken: "q1", DisplayName: "one"})
	if err != nil || res != nil {
		t.Fatalf("first join = %v, %v; want waiting", res, err)
	}
	if _, err := gm.JoinQueue(QueueEntry{QueueToken: "q1"}); !errors.Is(err, ErrAlreadyInQueue) {
		t.Errorf("rejoin err = %v, want ErrAlreadyInQueue", err)
	}

	res, err = gm.JoinQueue(QueueEntry{QueueToken: "q2", DisplayName: "two"})
	if err != nil || res == nil {
		t.Fatalf("second join = %v, %v; want a match", res, err)
	}
	if res.Player1ID != "q1" || res.Player2ID != "q2" {
		t.Errorf("seats = %s, %s; want the longest waiting player first", res.Player1ID, res.Player2ID)
	}
	if gm.GetQueueLength() != 0 {
		t.Errorf("queue length = %d, want 0", gm.GetQueueLength())
	}

	m, err := gm.GetMatchByToken(res.MatchToken)
	if err != nil {
		t.Fatalf("lookup by token: %v", err)
	}
	if m.PlayerByToken(res.Player2Token) != m.Player2 {
		t.Errorf("player token does not resolve to seat 2")
	}
	if _, err := gm.JoinQueue(QueueEntry{QueueToken: "q1"}); !errors.Is(err, ErrAlreadyInMatch) {
		t.Errorf("join while playing err = %v, want ErrAlreadyInMatch", err)
	}
}

func TestLeaveQueue(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	gm.JoinQueue(QueueEntry{QueueToken: "q1"})

	if !gm.IsPlayerInQueue("q1") {
		t.Fatalf("q1 not queued")
	}
	if !gm.LeaveQueue("q1") {
		t.Errorf("leave returned false")
	}
	if gm.LeaveQueue("q1") {
		t.Errorf("second leave returned true")
	}
}

func TestMatchLifecycle(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	m, err := gm.CreateTestMatch("alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.Shoot(m.Player1.ID, ShotParams{Power: 1}); !errors.Is(err, ErrMatchNotInProgress) {
		t.Errorf("shot before start err = %v", err)
	}
	if !gm.StartMatch(m) {
		t.Fatalf("start failed")
	}
	if gm.StartMatch(m) {
		t.Errorf("match started twice")
	}
	if err := m.Shoot(m.Player2.ID, ShotParams{Power: 1}); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("out of turn err = %v, want ErrNotYourTurn", err)
	}
	if err := m.Shoot("stranger", ShotParams{Power: 1}); !errors.Is(err, ErrNotInMatch) {
		t.Errorf("stranger err = %v, want ErrNotInMatch", err)
	}

	state := m.GetStateForPlayer(m.Player1.ID)
	if state["my_turn"] != true || state["is_break_shot"] != true {
		t.Errorf("player 1 view = %v", state)
	}
	if gm.GetActiveMatchCount() != 1 {
		t.Errorf("active = %d, want 1", gm.GetActiveMatchCount())
	}
	if err := gm.EndMatch(m.ID); err != nil {
		t.Errorf("end: %v", err)
	}
	if _, err := gm.GetMatch(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("lookup after end err = %v", err)
	}
}

func TestConcedeAwardsOpponent(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	m := startedMatch(t, gm)

	m.ForfeitByConcede(m.Player1.ID)

	s := m.Summary()
	if s.Status != StatusCompleted || s.Winner != m.Player2.ID || s.WinType != "concede" {
		t.Errorf("summary = %s winner=%s type=%s", s.Status, s.Winner, s.WinType)
	}
	// A second forfeit on a finished match changes nothing.
	m.ForfeitByDisconnect(m.Player2.ID)
	if m.Summary().Winner != m.Player2.ID {
		t.Errorf("winner changed after the match ended")
	}
}

func TestRunnerAdvanceBroadcastsOneTurn(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	b := &recordingBroadcaster{}
	gm.SetBroadcaster(b)
	m := startedMatch(t, gm)

	if err := m.Shoot(m.Player1.ID, ShotParams{Power: 1}); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	seq := 0
	for seq < 60*40 {
		seq++
		if !gm.advance(m, frame, seq) {
			break
		}
	}
	if m.Moving() {
		t.Fatalf("still moving after %d frames", seq)
	}
	if len(b.frames) != seq {
		t.Errorf("frames = %d, want %d", len(b.frames), seq)
	}
	if len(b.turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(b.turns))
	}
	if !b.turns[0].Break || b.turns[0].Shooter != 1 {
		t.Errorf("turn = %+v", b.turns[0])
	}
	if last, ok := m.LastTurn(); !ok || last.TurnNumber != b.turns[0].TurnNumber {
		t.Errorf("last turn not recorded")
	}
	if !m.releaseRunnerIfIdle() {
		t.Errorf("runner flag not released at rest")
	}
}

func TestTurnTimerExpiresLocalMatch(t *testing.T) {
	clock := rules.NewManualClock(time.Unix(0, 0))
	cfg := &config.Config{TickRateHz: 60, MatchExpiryMinutes: 10, TurnTimeLimitSeconds: 10}
	gm := newTestManager(t, cfg, clock)
	b := &recordingBroadcaster{}
	gm.SetBroadcaster(b)
	m := startedMatch(t, gm)

	clock.Advance(5 * time.Second)
	gm.expireLocalTurns()
	if len(b.turns) != 0 {
		t.Fatalf("timer fired early")
	}

	clock.Advance(6 * time.Second)
	gm.expireLocalTurns()
	if len(b.turns) != 1 || b.turns[0].Reason != rules.FoulTimeout {
		t.Fatalf("turns = %+v, want one timeout", b.turns)
	}
	if len(b.events) != 1 || b.events[0].Type != EventTurnTimeout || b.events[0].Player != m.Player1.ID {
		t.Errorf("events = %+v", b.events)
	}
	if st := m.GetStateForPlayer(m.Player2.ID); st["my_turn"] != true || st["ball_in_hand"] != true {
		t.Errorf("player 2 should have ball in hand: %v", st)
	}
}

func TestExpiredWaitingMatchIsCancelled(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	b := &recordingBroadcaster{}
	gm.SetBroadcaster(b)
	m, _ := gm.CreateTestMatch("alice", "bob")

	gm.checkExpiredMatches(m.ExpiresAt.Add(time.Second))

	if m.Summary().Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", m.Summary().Status)
	}
	if gm.GetActiveMatchCount() != 0 {
		t.Errorf("cancelled match still held")
	}
	if len(b.events) != 1 || b.events[0].Type != EventMatchCancelled {
		t.Errorf("events = %+v", b.events)
	}
}

func TestDisconnectForfeitAfterGrace(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	m := startedMatch(t, gm)
	m.SetPlayerConnected(m.Player1.ID, true)
	m.SetPlayerDisconnected(m.Player2.ID)

	gm.checkDisconnectForfeits(time.Now().Add(time.Minute))
	if m.Summary().Status != StatusInProgress {
		t.Fatalf("forfeited inside the grace period")
	}

	gm.checkDisconnectForfeits(time.Now().Add(3 * time.Minute))
	s := m.Summary()
	if s.Status != StatusCompleted || s.Winner != m.Player1.ID {
		t.Errorf("status %s winner %s, want player 1 by forfeit", s.Status, s.Winner)
	}
}

func TestRestoreMatchFromSummary(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	m := startedMatch(t, gm)
	m.ForfeitByConcede(m.Player2.ID)

	restored, err := gm.restoreMatch(m.Summary())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Token != m.Token || restored.Winner != m.Player1.ID || restored.Status != StatusCompleted {
		t.Errorf("restored = %+v", restored.Summary())
	}
	if restored.PlayerByToken(m.Player2.PlayerToken) == nil {
		t.Errorf("player tokens lost")
	}
	if len(restored.Snapshot().Balls) != len(m.Snapshot().Balls) {
		t.Errorf("ball count differs after restore")
	}
}

func TestRestoreMatchMidShot(t *testing.T) {
	gm := newTestManager(t, nil, nil)
	m := startedMatch(t, gm)
	shot := ShotParams{Angle: 0, Power: 1}
	if err := m.Shoot(m.Player1.ID, shot); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	for i := 0; i < 10; i++ {
		m.Tick(frame)
	}
	if !m.Moving() {
		t.Fatal("balls stopped too early for a mid-shot snapshot")
	}

	restored, err := gm.restoreMatch(m.Summary())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Moving() {
		t.Fatal("restored match lost the shot in play")
	}
	if restored.lastShot != shot {
		t.Errorf("last shot = %+v, want %+v", restored.lastShot, shot)
	}

	turns := 0
	for i := 0; i < 60*40 && restored.Moving(); i++ {
		if r := restored.Tick(frame); r.Turn != nil {
			turns++
		}
	}
	if turns != 1 {
		t.Fatalf("restored shot produced %d turn results, want 1", turns)
	}
	if res, ok := restored.LastTurn(); !ok || res.Reason == rules.FoulNoContact {
		t.Errorf("last turn = %+v ok=%v", res, ok)
	}
}

func TestParseMember(t *testing.T) {
	tests := []struct {
		in    string
		token string
		turn  int
		ok    bool
	}{
		{timerMember("abc", 7), "abc", 7, true},
		{"m:abc:t:x", "", 0, false},
		{"g:abc:p:1", "", 0, false},
		{"m::t:1", "", 0, false},
		{"m:abc", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			token, turn, ok := parseMember(tt.in)
			if token != tt.token || turn != tt.turn || ok != tt.ok {
				t.Errorf("parseMember(%q) = %q, %d, %v", tt.in, token, turn, ok)
			}
		})
	}
}
