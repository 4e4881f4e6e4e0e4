package rules

import (
	"time"

	"github.com/playpool/billiards/internal/physics"
)

// Game is the turn state machine for one 8-ball game between players 1 and 2.
type Game struct {
	opts  Options
	clock Clock

	current  int
	groups   [2]Group
	assigned bool
	phase    Phase
	facts    Facts

	turn        int
	breakShot   bool
	kitchenOnly bool

	turnStart time.Time
	deadline  time.Time

	gameOver bool
	winner   int

	evaluating bool
}

// NewGame starts a game with player 1 to break.
func NewGame(opts Options, clock Clock) *Game {
	if clock == nil {
		clock = SystemClock{}
	}
	g := &Game{
		opts:      opts,
		clock:     clock,
		current:   1,
		phase:     PhaseAiming,
		facts:     freshFacts(),
		turn:      1,
		breakShot: true,
	}
	g.restartTimer()
	return g
}

func other(player int) int {
	if player == 1 {
		return 2
	}
	return 1
}

func (g *Game) Current() int        { return g.current }
func (g *Game) Phase() Phase        { return g.phase }
func (g *Game) Assigned() bool      { return g.assigned }
func (g *Game) Groups() [2]Group    { return g.groups }
func (g *Game) GameOver() bool      { return g.gameOver }
func (g *Game) Winner() int         { return g.winner }
func (g *Game) Turn() int           { return g.turn }
func (g *Game) IsBreak() bool       { return g.breakShot }
func (g *Game) KitchenOnly() bool   { return g.kitchenOnly }
func (g *Game) Deadline() time.Time { return g.deadline }
func (g *Game) Options() Options    { return g.opts }

// GroupOf returns the group of player 1 or 2.
func (g *Game) GroupOf(player int) Group {
	if player != 1 && player != 2 {
		return GroupOpen
	}
	return g.groups[player-1]
}

// Facts returns a copy of the facts gathered for the current shot.
func (g *Game) Facts() Facts {
	f := g.facts
	f.Pocketed = append([]int(nil), g.facts.Pocketed...)
	return f
}

// OnMoneyBall reports whether player has cleared their group.
func (g *Game) OnMoneyBall(player int, t Table) bool {
	return g.assigned && t.RemainingInGroup(g.GroupOf(player)) == 0
}

// BeginShot moves from Aiming or BallInHand to ShotInProgress.
func (g *Game) BeginShot() error {
	if g.gameOver {
		return ErrGameOver
	}
	if g.phase != PhaseAiming && g.phase != PhaseBallInHand {
		return ErrWrongPhase
	}
	g.phase = PhaseShotInProgress
	g.facts = freshFacts()
	g.kitchenOnly = false
	return nil
}

// RecordFirstHit keeps only the first ball struck by the cue in a shot.
func (g *Game) RecordFirstHit(number int) {
	if g.phase != PhaseShotInProgress || g.facts.FirstHit >= 0 {
		return
	}
	g.facts.FirstHit = number
}

// RecordPocketed adds a ball collected during the shot.
func (g *Game) RecordPocketed(number int) {
	if g.phase != PhaseShotInProgress {
		return
	}
	for _, n := range g.facts.Pocketed {
		if n == number {
			return
		}
	}
	g.facts.Pocketed = append(g.facts.Pocketed, number)
	if number == physics.CueBall {
		g.facts.Scratch = true
	}
}

// RecordRail notes a cushion contact after first contact.
func (g *Game) RecordRail() {
	if g.phase == PhaseShotInProgress {
		g.facts.RailAfterContact = true
	}
}

// ShotSettled is called on the moving to rest transition.
func (g *Game) ShotSettled() bool {
	if g.phase != PhaseShotInProgress {
		return false
	}
	g.phase = PhaseReview
	return true
}

// CheckTimer reports whether the turn clock has run out.
func (g *Game) CheckTimer() bool {
	if g.gameOver || g.deadline.IsZero() || g.evaluating {
		return false
	}
	return !g.clock.Now().Before(g.deadline)
}

// Remaining returns the time left on the turn clock, or zero without a limit.
func (g *Game) Remaining() time.Duration {
	if g.deadline.IsZero() {
		return 0
	}
	d := g.deadline.Sub(g.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Timeout ends the turn with a timeout foul. Any shot in progress must
// already have been halted by the caller.
func (g *Game) Timeout(t Table) (TurnResult, bool) {
	if g.gameOver || g.evaluating {
		return TurnResult{}, false
	}
	g.facts.TimedOut = true
	g.phase = PhaseReview
	return g.Evaluate(t)
}

// Forfeit ends the game in favour of loser's opponent.
func (g *Game) Forfeit(loser int) TurnResult {
	winner := other(loser)
	g.gameOver = true
	g.winner = winner
	g.phase = PhaseGameOver
	g.deadline = time.Time{}
	return TurnResult{
		TurnNumber: g.turn,
		Shooter:    g.current,
		GameOver:   true,
		Winner:     winner,
		Groups:     g.groups,
		FirstHit:   -1,
	}
}

// ResetClock restarts the current turn's clock, for when play actually begins.
func (g *Game) ResetClock() {
	if !g.gameOver {
		g.restartTimer()
	}
}

func (g *Game) restartTimer() {
	g.turnStart = g.clock.Now()
	if g.opts.TurnTimeLimit > 0 {
		g.deadline = g.turnStart.Add(g.opts.TurnTimeLimit)
	} else {
		g.deadline = time.Time{}
	}
}

// State is a serialisable copy of the game, used for snapshots.
type State struct {
	Current     int       `json:"current"`
	Groups      [2]Group  `json:"groups"`
	Assigned    bool      `json:"assigned"`
	Phase       Phase     `json:"phase"`
	Turn        int       `json:"turn"`
	Break       bool      `json:"break"`
	KitchenOnly bool      `json:"kitchen_only"`
	Deadline    time.Time `json:"deadline"`
	GameOver    bool      `json:"game_over"`
	Winner      int       `json:"winner"`
	Facts       Facts     `json:"facts"`
}

func (g *Game) State() State {
	return State{
		Current:     g.current,
		Groups:      g.groups,
		Assigned:    g.assigned,
		Phase:       g.phase,
		Turn:        g.turn,
		Break:       g.breakShot,
		KitchenOnly: g.kitchenOnly,
		Deadline:    g.deadline,
		GameOver:    g.gameOver,
		Winner:      g.winner,
		Facts:       g.facts.clone(),
	}
}

// Restore rebuilds a game from a snapshot. A shot that was running, or had
// settled but was not yet judged, resumes in ShotInProgress with its facts
// so the next settle evaluates it once.
func Restore(s State, opts Options, clock Clock) *Game {
	g := NewGame(opts, clock)
	g.current = s.Current
	if g.current != 1 && g.current != 2 {
		g.current = 1
	}
	g.groups = s.Groups
	g.assigned = s.Assigned
	g.phase = s.Phase
	if g.phase == PhaseReview {
		g.phase = PhaseShotInProgress
	}
	if g.phase == PhaseShotInProgress {
		g.facts = s.Facts.clone()
		if g.facts.FirstHit < -1 || g.facts.FirstHit >= physics.NumBalls {
			g.facts.FirstHit = -1
		}
	}
	g.turn = s.Turn
	g.breakShot = s.Break
	g.kitchenOnly = s.KitchenOnly
	g.deadline = s.Deadline
	g.gameOver = s.GameOver
	g.winner = s.Winner
	return g
}
