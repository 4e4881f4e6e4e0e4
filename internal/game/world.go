package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

var (
	ErrNotYourTurn    = errors.New("not your turn")
	ErrShotInProgress = errors.New("a shot is already in progress")
	ErrGameOver       = errors.New("game is over")
	ErrNotBallInHand  = errors.New("not ball-in-hand")
	ErrBadPlacement   = errors.New("cue ball cannot be placed there")
	ErrInvalidShot    = errors.New("invalid shot")
)

// World owns one table: the physics engine and the rule state that judges it.
// It is not safe for concurrent use; Match serialises access.
type World struct {
	engine *physics.Engine
	rules  *rules.Game
	moving bool
}

// FrameReport is everything a renderer or network layer needs from one Tick.
type FrameReport struct {
	physics.FrameResult
	Moving bool
	Turn   *rules.TurnResult // set once per completed turn
}

// NewWorld racks a fresh table. A malformed table or parameter set is
// reported here and nowhere else.
func NewWorld(table *physics.Table, params physics.Params, opts rules.Options, clock rules.Clock) (*World, error) {
	engine, err := physics.NewEngine(table, params)
	if err != nil {
		return nil, fmt.Errorf("new world: %w", err)
	}
	engine.Rack()
	return &World{
		engine: engine,
		rules:  rules.NewGame(opts, clock),
	}, nil
}

// tableView adapts the engine to what the rule evaluator asks of a table.
type tableView struct {
	engine *physics.Engine
}

func (t tableView) RemainingInGroup(g rules.Group) int {
	n := 0
	for _, b := range t.engine.Snapshot() {
		if b.Active && rules.GroupOf(b.Number) == g && g != rules.GroupOpen {
			n++
		}
	}
	return n
}

func (t tableView) RespotCue() {
	t.engine.RespotCue()
}

func (w *World) table() tableView {
	return tableView{engine: w.engine}
}

// Shoot strikes the cue ball for player (1 or 2).
func (w *World) Shoot(player int, angle, power float64, spin physics.Vec2) error {
	switch {
	case w.rules.GameOver():
		return ErrGameOver
	case w.moving || w.rules.Phase() == rules.PhaseShotInProgress || w.rules.Phase() == rules.PhaseReview:
		return ErrShotInProgress
	case player != w.rules.Current():
		return ErrNotYourTurn
	}
	if err := w.engine.Strike(angle, power, spin); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShot, err)
	}
	if err := w.rules.BeginShot(); err != nil {
		w.engine.Settle()
		return fmt.Errorf("%w: %v", ErrShotInProgress, err)
	}
	w.moving = true
	return nil
}

// Tick advances the world by dt seconds. The turn is evaluated on the
// frame the table comes to rest, or when the turn clock runs out.
func (w *World) Tick(dt float64) FrameReport {
	frame := w.engine.Step(dt)
	if frame.FirstHit >= 0 {
		w.rules.RecordFirstHit(frame.FirstHit)
	}
	for _, p := range frame.Pocketed {
		w.rules.RecordPocketed(p.Number)
	}
	if w.engine.RailAfterContact() {
		w.rules.RecordRail()
	}

	report := FrameReport{FrameResult: frame}

	if w.rules.CheckTimer() {
		if res, ok := w.TimerExpired(); ok {
			report.Turn = &res
		}
		report.Moving = w.moving
		return report
	}

	if w.moving && w.engine.AtRest() {
		w.moving = false
		w.engine.Settle()
		if w.rules.ShotSettled() {
			if res, ok := w.rules.Evaluate(w.table()); ok {
				report.Turn = &res
			}
		}
	}
	report.Moving = w.moving
	return report
}

// TimerExpired ends the current turn with a timeout foul, stopping any
// balls still rolling.
func (w *World) TimerExpired() (rules.TurnResult, bool) {
	if w.moving {
		w.engine.Settle()
		w.moving = false
	}
	return w.rules.Timeout(w.table())
}

// PlaceCueBall moves the cue ball during ball in hand.
func (w *World) PlaceCueBall(player int, pos physics.Vec2) error {
	switch {
	case w.rules.GameOver():
		return ErrGameOver
	case player != w.rules.Current():
		return ErrNotYourTurn
	case w.rules.Phase() != rules.PhaseBallInHand:
		return ErrNotBallInHand
	case w.rules.KitchenOnly() && !w.engine.Table().InKitchen(pos):
		return fmt.Errorf("%w: must be behind the head string", ErrBadPlacement)
	}
	if err := w.engine.PlaceCue(pos); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPlacement, err)
	}
	return nil
}

// Forfeit ends the game against loser.
func (w *World) Forfeit(loser int) rules.TurnResult {
	w.engine.Settle()
	w.moving = false
	return w.rules.Forfeit(loser)
}

func (w *World) Moving() bool                   { return w.moving }
func (w *World) Current() int                   { return w.rules.Current() }
func (w *World) Phase() rules.Phase             { return w.rules.Phase() }
func (w *World) GameOver() bool                 { return w.rules.GameOver() }
func (w *World) Winner() int                    { return w.rules.Winner() }
func (w *World) GroupOf(player int) rules.Group { return w.rules.GroupOf(player) }
func (w *World) Deadline() time.Time            { return w.rules.Deadline() }
func (w *World) Table() *physics.Table          { return w.engine.Table() }
func (w *World) Params() physics.Params         { return w.engine.Params() }
func (w *World) Turn() int                      { return w.rules.Turn() }
func (w *World) TimerDue() bool                 { return w.rules.CheckTimer() }

// ResetClock restarts the turn clock without changing the turn.
func (w *World) ResetClock() { w.rules.ResetClock() }

// OnMoneyBall reports whether player has cleared their group.
func (w *World) OnMoneyBall(player int) bool {
	return w.rules.OnMoneyBall(player, w.table())
}

// Snapshot is a read-only view of the world for renderers and clients.
type Snapshot struct {
	Balls       []physics.BallSnapshot `json:"balls" msgpack:"balls"`
	Phase       rules.Phase            `json:"phase" msgpack:"phase"`
	Current     int                    `json:"current" msgpack:"current"`
	Groups      [2]rules.Group         `json:"groups" msgpack:"groups"`
	Assigned    bool                   `json:"assigned" msgpack:"assigned"`
	Turn        int                    `json:"turn" msgpack:"turn"`
	Break       bool                   `json:"break" msgpack:"break"`
	BallInHand  bool                   `json:"ball_in_hand" msgpack:"ball_in_hand"`
	KitchenOnly bool                   `json:"kitchen_only" msgpack:"kitchen_only"`
	Moving      bool                   `json:"moving" msgpack:"moving"`
	GameOver    bool                   `json:"game_over" msgpack:"game_over"`
	Winner      int                    `json:"winner,omitempty" msgpack:"winner"`
	OnMoneyBall [2]bool                `json:"on_money_ball" msgpack:"on_money_ball"`
	TimeLeft    float64                `json:"time_left,omitempty" msgpack:"time_left"`
}

func (w *World) Snapshot() Snapshot {
	return Snapshot{
		Balls:       w.engine.Snapshot(),
		Phase:       w.rules.Phase(),
		Current:     w.rules.Current(),
		Groups:      w.rules.Groups(),
		Assigned:    w.rules.Assigned(),
		Turn:        w.rules.Turn(),
		Break:       w.rules.IsBreak(),
		BallInHand:  w.rules.Phase() == rules.PhaseBallInHand,
		KitchenOnly: w.rules.KitchenOnly(),
		Moving:      w.moving,
		GameOver:    w.rules.GameOver(),
		Winner:      w.rules.Winner(),
		OnMoneyBall: [2]bool{w.OnMoneyBall(1), w.OnMoneyBall(2)},
		TimeLeft:    w.rules.Remaining().Seconds(),
	}
}

// WorldState is the persisted form of a World.
type WorldState struct {
	Balls  []physics.Ball    `json:"balls"`
	Shot   physics.ShotState `json:"shot"`
	Moving bool              `json:"moving"`
	Rules  rules.State       `json:"rules"`
}

// State captures the world for storage, including a shot still in play.
func (w *World) State() WorldState {
	balls := make([]physics.Ball, 0, physics.NumBalls)
	for n := 0; n < physics.NumBalls; n++ {
		if b, ok := w.engine.Ball(n); ok {
			balls = append(balls, b)
		}
	}
	return WorldState{
		Balls:  balls,
		Shot:   w.engine.Shot(),
		Moving: w.moving,
		Rules:  w.rules.State(),
	}
}

// RestoreWorld rebuilds a world from a stored state. A shot that was in play
// carries on from where it was saved: the next Tick that finds the table at
// rest judges it and reports the TurnResult.
func RestoreWorld(s WorldState, table *physics.Table, params physics.Params, opts rules.Options, clock rules.Clock) (*World, error) {
	engine, err := physics.NewEngine(table, params)
	if err != nil {
		return nil, fmt.Errorf("restore world: %w", err)
	}
	if err := engine.SetBalls(s.Balls); err != nil {
		return nil, fmt.Errorf("restore world: %w", err)
	}
	w := &World{engine: engine, rules: rules.Restore(s.Rules, opts, clock)}
	if w.rules.Phase() == rules.PhaseShotInProgress {
		engine.ResumeShot(s.Shot)
		w.moving = true
	} else {
		engine.Settle()
	}
	return w, nil
}
