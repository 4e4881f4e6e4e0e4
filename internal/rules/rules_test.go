package rules

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeTable struct {
	remaining map[Group]int
	respots   int
	onRespot  func()
}

func newFakeTable() *fakeTable {
	return &fakeTable{remaining: map[Group]int{GroupSolids: 7, GroupStripes: 7}}
}

func (f *fakeTable) RemainingInGroup(g Group) int { return f.remaining[g] }

func (f *fakeTable) RespotCue() {
	f.respots++
	if f.onRespot != nil {
		f.onRespot()
	}
}

type shot struct {
	firstHit int
	pocketed []int
	rail     bool
}

// play runs one shot through the state machine and evaluates it.
func play(t *testing.T, g *Game, table *fakeTable, s shot) TurnResult {
	t.Helper()
	if err := g.BeginShot(); err != nil {
		t.Fatalf("begin shot: %v", err)
	}
	if s.firstHit >= 0 {
		g.RecordFirstHit(s.firstHit)
	}
	for _, n := range s.pocketed {
		g.RecordPocketed(n)
		if GroupOf(n) != GroupOpen {
			table.remaining[GroupOf(n)]--
		}
	}
	if s.rail {
		g.RecordRail()
	}
	if !g.ShotSettled() {
		t.Fatalf("shot did not settle from phase %v", g.Phase())
	}
	res, ok := g.Evaluate(table)
	if !ok {
		t.Fatalf("evaluation rejected")
	}
	return res
}

// assignedGame returns a game where player 1 owns solids and is still shooting.
func assignedGame(t *testing.T, opts Options) (*Game, *fakeTable) {
	t.Helper()
	g := NewGame(opts, NewManualClock(time.Unix(0, 0)))
	table := newFakeTable()
	play(t, g, table, shot{firstHit: 1, pocketed: []int{1}, rail: true})
	if g.GroupOf(1) != GroupSolids || g.Current() != 1 {
		t.Fatalf("setup: player 1 group %v, current %d", g.GroupOf(1), g.Current())
	}
	return g, table
}

func TestOpenTableAssignsGroupFromFirstPocketed(t *testing.T) {
	g := NewGame(Options{}, nil)
	table := newFakeTable()

	res := play(t, g, table, shot{firstHit: 3, pocketed: []int{3}})

	if !res.GroupAssigned || !g.Assigned() {
		t.Fatalf("groups not assigned: %+v", res)
	}
	if g.GroupOf(1) != GroupSolids || g.GroupOf(2) != GroupStripes {
		t.Errorf("groups = %v/%v, want solids/stripes", g.GroupOf(1), g.GroupOf(2))
	}
	if res.FoulCommitted || res.NextPlayer != 1 {
		t.Errorf("legal pot should continue the turn: %+v", res)
	}
}

func TestRuleCases(t *testing.T) {
	cases := []struct {
		name       string
		opts       Options
		setSolids  bool // override the solids left on the table before the shot
		solidsLeft int
		shot       shot
		foul       FoulReason
		next       int
		ballInHand bool
		gameOver   bool
		winner     int
	}{
		{
			name: "legal continuation",
			shot: shot{firstHit: 2, pocketed: []int{2}},
			next: 1,
		},
		{
			name: "miss switches without ball in hand",
			shot: shot{firstHit: 2},
			next: 2,
		},
		{
			name:       "scratch beats a legal pot",
			shot:       shot{firstHit: 2, pocketed: []int{2, 0}},
			foul:       FoulScratch,
			next:       2,
			ballInHand: true,
		},
		{
			name:       "opponent ball first",
			shot:       shot{firstHit: 12},
			foul:       FoulWrongFirstContact,
			next:       2,
			ballInHand: true,
		},
		{
			name:       "no contact",
			shot:       shot{firstHit: -1},
			foul:       FoulNoContact,
			next:       2,
			ballInHand: true,
		},
		{
			name:       "money ball first before clearing",
			shot:       shot{firstHit: 8},
			foul:       FoulWrongFirstContact,
			next:       2,
			ballInHand: true,
		},
		{
			name: "potting only an opponent ball",
			shot: shot{firstHit: 3, pocketed: []int{10}},
			next: 2,
		},
		{
			name:       "rail required and missing",
			opts:       Options{RequireRailAfterContact: true},
			shot:       shot{firstHit: 3},
			foul:       FoulNoRail,
			next:       2,
			ballInHand: true,
		},
		{
			name: "rail required and reached",
			opts: Options{RequireRailAfterContact: true},
			shot: shot{firstHit: 3, rail: true},
			next: 2,
		},
		{
			name:       "money ball after clearing wins",
			setSolids:  true,
			solidsLeft: 0,
			shot:       shot{firstHit: 8, pocketed: []int{8}},
			gameOver:   true,
			winner:     1,
		},
		{
			name:     "money ball early loses",
			shot:     shot{firstHit: 2, pocketed: []int{8}},
			foul:     FoulNone,
			gameOver: true,
			winner:   2,
		},
		{
			name:       "money ball with scratch loses",
			setSolids:  true,
			solidsLeft: 0,
			shot:       shot{firstHit: 8, pocketed: []int{8, 0}},
			foul:       FoulScratch,
			gameOver:   true,
			winner:     2,
		},
		{
			name:       "money ball with last solid loses",
			setSolids:  true,
			solidsLeft: 1,
			shot:       shot{firstHit: 7, pocketed: []int{7, 8}},
			gameOver:   true,
			winner:     2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, table := assignedGame(t, tc.opts)
			if tc.setSolids {
				table.remaining[GroupSolids] = tc.solidsLeft
			}

			res := play(t, g, table, tc.shot)

			if res.Reason != tc.foul || res.FoulCommitted != (tc.foul != FoulNone) {
				t.Errorf("foul = %v (%v), want %v", res.Reason, res.FoulCommitted, tc.foul)
			}
			if res.GameOver != tc.gameOver {
				t.Fatalf("game over = %v, want %v", res.GameOver, tc.gameOver)
			}
			if tc.gameOver {
				if res.Winner != tc.winner || g.Winner() != tc.winner {
					t.Errorf("winner = %d, want %d", res.Winner, tc.winner)
				}
				if g.Phase() != PhaseGameOver {
					t.Errorf("phase = %v, want game_over", g.Phase())
				}
				return
			}
			if res.NextPlayer != tc.next || g.Current() != tc.next {
				t.Errorf("next = %d (current %d), want %d", res.NextPlayer, g.Current(), tc.next)
			}
			if res.BallInHand != tc.ballInHand {
				t.Errorf("ball in hand = %v, want %v", res.BallInHand, tc.ballInHand)
			}
			wantPhase := PhaseAiming
			if tc.ballInHand {
				wantPhase = PhaseBallInHand
			}
			if g.Phase() != wantPhase {
				t.Errorf("phase = %v, want %v", g.Phase(), wantPhase)
			}
		})
	}
}

func TestAssigningShotIsJudgedByNewGroups(t *testing.T) {
	g := NewGame(Options{}, nil)
	table := newFakeTable()

	// Player 1 strikes a solid first but pockets a stripe: they become
	// stripes, so the first contact was on the opponent's group.
	res := play(t, g, table, shot{firstHit: 4, pocketed: []int{11}})

	if g.GroupOf(1) != GroupStripes {
		t.Fatalf("player 1 group = %v, want stripes", g.GroupOf(1))
	}
	if res.Reason != FoulWrongFirstContact || !res.BallInHand || res.NextPlayer != 2 {
		t.Errorf("result = %+v, want wrong first contact with ball in hand to 2", res)
	}
}

func TestScratchNeverAssignsGroups(t *testing.T) {
	g := NewGame(Options{}, nil)
	table := newFakeTable()
	res := play(t, g, table, shot{firstHit: 5, pocketed: []int{5, 0}})

	if g.Assigned() || res.GroupAssigned {
		t.Errorf("scratch assigned groups")
	}
	if table.respots != 1 {
		t.Errorf("cue respotted %d times, want 1", table.respots)
	}
	if !res.BehindHeadString {
		t.Errorf("scratch on the break should restrict ball in hand to the kitchen")
	}
	if !g.KitchenOnly() {
		t.Errorf("game should remember the kitchen restriction")
	}
}

func TestEvaluationIsNotReentrant(t *testing.T) {
	g, table := assignedGame(t, Options{})
	inner := 0
	table.onRespot = func() {
		if _, ok := g.Evaluate(table); ok {
			inner++
		}
		if _, ok := g.Timeout(table); ok {
			inner++
		}
	}

	res := play(t, g, table, shot{firstHit: 2, pocketed: []int{0}})
	if inner != 0 {
		t.Fatalf("nested evaluation ran %d times", inner)
	}
	if res.TurnNumber != 2 || g.Turn() != 3 {
		t.Errorf("turn counter = %d/%d, want a single advance", res.TurnNumber, g.Turn())
	}
	if _, ok := g.Evaluate(table); ok {
		t.Errorf("second evaluation of the same turn accepted")
	}
}

func TestFactsClearedAfterEvaluation(t *testing.T) {
	g, table := assignedGame(t, Options{})
	play(t, g, table, shot{firstHit: 3, pocketed: []int{3}, rail: true})

	f := g.Facts()
	if f.FirstHit != -1 || len(f.Pocketed) != 0 || f.Scratch || f.RailAfterContact || f.TimedOut {
		t.Errorf("facts not cleared: %+v", f)
	}
}

func TestFirstHitIsIdempotent(t *testing.T) {
	g := NewGame(Options{}, nil)
	if err := g.BeginShot(); err != nil {
		t.Fatal(err)
	}
	g.RecordFirstHit(4)
	g.RecordFirstHit(9)
	g.RecordPocketed(4)
	g.RecordPocketed(4)
	f := g.Facts()
	if f.FirstHit != 4 {
		t.Errorf("first hit = %d, want 4", f.FirstHit)
	}
	if len(f.Pocketed) != 1 {
		t.Errorf("pocketed = %v, want one entry", f.Pocketed)
	}
}

func TestTurnTimer(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	g := NewGame(Options{TurnTimeLimit: 30 * time.Second}, clock)
	table := newFakeTable()

	clock.Advance(29 * time.Second)
	if g.CheckTimer() {
		t.Fatalf("timer fired early")
	}
	if got := g.Remaining(); got != time.Second {
		t.Errorf("remaining = %v, want 1s", got)
	}
	clock.Advance(time.Second)
	if !g.CheckTimer() {
		t.Fatalf("timer did not fire at the deadline")
	}

	res, ok := g.Timeout(table)
	if !ok {
		t.Fatalf("timeout evaluation rejected")
	}
	if res.Reason != FoulTimeout || !res.BallInHand || res.NextPlayer != 2 {
		t.Errorf("result = %+v, want timeout foul to player 2", res)
	}
	if want := clock.Now().Add(30 * time.Second); !g.Deadline().Equal(want) {
		t.Errorf("deadline = %v, want restarted at %v", g.Deadline(), want)
	}
	if g.CheckTimer() {
		t.Errorf("restarted timer already expired")
	}
}

func TestNoTimerWithoutLimit(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	g := NewGame(Options{}, clock)
	clock.Advance(time.Hour)
	if g.CheckTimer() {
		t.Errorf("timer fired without a limit")
	}
}

func TestPhaseGuards(t *testing.T) {
	g := NewGame(Options{}, nil)
	if err := g.BeginShot(); err != nil {
		t.Fatal(err)
	}
	if err := g.BeginShot(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("second BeginShot err = %v, want ErrWrongPhase", err)
	}
	if _, ok := g.Evaluate(newFakeTable()); ok {
		t.Errorf("evaluated while the shot was still running")
	}

	g.Forfeit(1)
	if err := g.BeginShot(); !errors.Is(err, ErrGameOver) {
		t.Errorf("BeginShot after forfeit err = %v, want ErrGameOver", err)
	}
	if g.Winner() != 2 {
		t.Errorf("winner = %d, want 2", g.Winner())
	}
}

func TestOnMoneyBall(t *testing.T) {
	g, table := assignedGame(t, Options{})
	if g.OnMoneyBall(1, table) {
		t.Errorf("player 1 still has solids")
	}
	table.remaining[GroupSolids] = 0
	if !g.OnMoneyBall(1, table) || g.OnMoneyBall(2, table) {
		t.Errorf("money ball status wrong")
	}
}

func TestStateRoundTrip(t *testing.T) {
	g, _ := assignedGame(t, Options{})
	s := g.State()
	r := Restore(s, Options{}, nil)
	if !reflect.DeepEqual(r.State(), s) {
		t.Errorf("restored state = %+v, want %+v", r.State(), s)
	}
}

func TestRestoreMidShotKeepsFacts(t *testing.T) {
	g, table := assignedGame(t, Options{})
	shooter := g.Current()
	if err := g.BeginShot(); err != nil {
		t.Fatal(err)
	}
	own := 2
	if g.GroupOf(shooter) == GroupStripes {
		own = 10
	}
	g.RecordFirstHit(own)
	g.RecordPocketed(own)

	s := g.State()
	r := Restore(s, Options{}, nil)
	if r.Phase() != PhaseShotInProgress {
		t.Fatalf("phase = %v, want the shot still running", r.Phase())
	}
	if f := r.Facts(); f.FirstHit != own || len(f.Pocketed) != 1 {
		t.Fatalf("facts = %+v, want first hit and pot of %d", f, own)
	}

	// a second first hit must not overwrite the restored one
	r.RecordFirstHit(8)
	if !r.ShotSettled() {
		t.Fatal("settle refused")
	}
	table.remaining[g.GroupOf(shooter)]--
	res, ok := r.Evaluate(table)
	if !ok {
		t.Fatal("restored shot not evaluated")
	}
	if res.FoulCommitted || res.NextPlayer != shooter {
		t.Errorf("result = %+v, want a clean pot and the shooter to continue", res)
	}

	// a snapshot taken between settle and judgement is judged once too
	s.Phase = PhaseReview
	r = Restore(s, Options{}, nil)
	if !r.ShotSettled() {
		t.Fatal("review snapshot not resumable")
	}
	if _, ok := r.Evaluate(table); !ok {
		t.Errorf("review snapshot not evaluated")
	}
	if _, ok := r.Evaluate(table); ok {
		t.Errorf("evaluated twice")
	}
}
