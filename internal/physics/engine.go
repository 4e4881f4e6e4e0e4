// Package physics simulates billiard balls as rigid discs on a polygonal table.
package physics

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrCueNotOnTable = errors.New("physics: cue ball is not on the table")
	ErrInvalidStrike = errors.New("physics: invalid strike")
	ErrBadPlacement  = errors.New("physics: cue ball cannot be placed there")
)

// ImpactKind tells a listener what was struck.
type ImpactKind uint8

const (
	ImpactBall ImpactKind = iota
	ImpactCushion
)

func (k ImpactKind) String() string {
	if k == ImpactCushion {
		return "cushion"
	}
	return "ball"
}

// Impact is emitted for every approaching contact. Magnitude is the closing
// speed along the contact normal.
type Impact struct {
	Kind      ImpactKind `json:"kind" msgpack:"k"`
	Ball      int        `json:"ball" msgpack:"b"`
	Other     int        `json:"other" msgpack:"o"` // ball number, or segment index for cushions
	Magnitude float64    `json:"magnitude" msgpack:"m"`
}

// PocketEvent reports a ball collected by a pocket.
type PocketEvent struct {
	Number   int `json:"number" msgpack:"n"`
	PocketID int `json:"pocket" msgpack:"p"`
}

// FrameResult describes one call to Step.
type FrameResult struct {
	SubSteps      int
	SubTimeStep   float64 // length of the last sub-step
	MaxStepTravel float64 // largest single sub-step displacement of any ball
	Pocketed      []PocketEvent
	Impacts       []Impact
	FirstHit      int     // ball number first struck by the cue this frame, -1 if none
	Truncated     float64 // simulated time dropped at the sub-step cap, 0 normally
}

// ShotState is what the engine remembers about the shot in play. It is
// persisted with mid-shot snapshots so a restored table resumes the shot.
type ShotState struct {
	Active       bool    `json:"active"`
	InitialSpeed float64 `json:"initial_speed"`
	FirstHit     int     `json:"first_hit"`
	RailAfterHit bool    `json:"rail_after_hit"`
}

// Engine owns the balls and advances them. It is not safe for concurrent use.
type Engine struct {
	params Params
	table  *Table
	balls  []Ball
	grid   *Grid
	shot   ShotState
	frame  FrameResult
}

// NewEngine validates the inputs and returns an engine with an empty table.
func NewEngine(table *Table, p Params) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil table", ErrInvalidTable)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cell := p.GridCellFactor * 2 * p.BallRadius
	return &Engine{
		params: p,
		table:  table,
		grid:   NewGrid(table.Min, table.Max, cell),
		shot:   ShotState{FirstHit: -1},
	}, nil
}

func (e *Engine) Params() Params { return e.params }
func (e *Engine) Table() *Table  { return e.table }

// Rack places all sixteen balls in their starting positions.
func (e *Engine) Rack() {
	pos := e.table.RackPositions(e.params.BallRadius)
	e.balls = e.balls[:0]
	for n := 0; n < NumBalls; n++ {
		e.balls = append(e.balls, NewBall(n, pos[n]))
	}
	e.shot = ShotState{FirstHit: -1}
}

// SetBalls replaces the ball set. Exactly one cue ball is required.
func (e *Engine) SetBalls(balls []Ball) error {
	cues := 0
	for i := range balls {
		if balls[i].IsCue() {
			cues++
		}
		if !finiteVec(balls[i].Pos) {
			return fmt.Errorf("physics: ball %d has a non-finite position", balls[i].Number)
		}
	}
	if cues != 1 {
		return fmt.Errorf("physics: need exactly one cue ball, got %d", cues)
	}
	e.balls = append(e.balls[:0], balls...)
	e.shot = ShotState{FirstHit: -1}
	return nil
}

func (e *Engine) cue() *Ball {
	for i := range e.balls {
		if e.balls[i].IsCue() {
			return &e.balls[i]
		}
	}
	return nil
}

// Ball returns a copy of the ball with the given number.
func (e *Engine) Ball(number int) (Ball, bool) {
	for i := range e.balls {
		if e.balls[i].Number == number {
			return e.balls[i], true
		}
	}
	return Ball{}, false
}

// Snapshot copies the state of every ball.
func (e *Engine) Snapshot() []BallSnapshot {
	out := make([]BallSnapshot, len(e.balls))
	for i := range e.balls {
		out[i] = e.balls[i].Snapshot()
	}
	return out
}

// Strike sets the cue ball moving. angle is in radians, power in (0, 1],
// spin components in [-1, 1].
func (e *Engine) Strike(angle, power float64, spin Vec2) error {
	c := e.cue()
	if c == nil || !c.Active {
		return ErrCueNotOnTable
	}
	if !finite(angle) || !finite(power) || power <= 0 || power > 1 {
		return fmt.Errorf("%w: power %v", ErrInvalidStrike, power)
	}
	if !finiteVec(spin) || math.Abs(spin[0]) > 1 || math.Abs(spin[1]) > 1 {
		return fmt.Errorf("%w: spin %v", ErrInvalidStrike, spin)
	}

	speed := power * e.params.MaxShotSpeed
	c.Vel = Vec2{math.Cos(angle), math.Sin(angle)}.Mul(speed)
	c.Spin = spin
	e.shot = ShotState{Active: true, InitialSpeed: speed, FirstHit: -1}
	return nil
}

// FirstHit returns the number of the first ball the cue struck this shot, or -1.
func (e *Engine) FirstHit() int { return e.shot.FirstHit }

// RailAfterContact reports whether any ball met a cushion after first contact.
func (e *Engine) RailAfterContact() bool { return e.shot.RailAfterHit }

// Shot returns the state of the shot in play.
func (e *Engine) Shot() ShotState { return e.shot }

// ResumeShot reinstates a shot saved with Shot, after SetBalls.
func (e *Engine) ResumeShot(s ShotState) {
	if !finite(s.InitialSpeed) || s.InitialSpeed < 0 {
		s.InitialSpeed = 0
	}
	if s.FirstHit < 0 || s.FirstHit >= NumBalls {
		s.FirstHit = -1
	}
	e.shot = s
}

// AtRest reports whether every active ball is below the rest speed and
// nothing is mid-pocket.
func (e *Engine) AtRest() bool {
	for i := range e.balls {
		b := &e.balls[i]
		if b.Pocket == PocketFalling {
			return false
		}
		if b.Active && b.Speed() >= e.params.RestSpeed {
			return false
		}
	}
	return true
}

// Settle zeroes residual motion once the table is at rest, or immediately
// when a shot is cut short.
func (e *Engine) Settle() {
	for i := range e.balls {
		e.balls[i].Vel = Vec2{}
		e.balls[i].Spin = Vec2{}
	}
	e.shot.Active = false
}

// PlaceCue puts the cue ball at pos if it fits: inside the cushion, clear
// of every cushion and not touching another ball.
func (e *Engine) PlaceCue(pos Vec2) error {
	c := e.cue()
	if c == nil {
		return ErrCueNotOnTable
	}
	if err := e.checkPlacement(pos, c.Number); err != nil {
		return err
	}
	c.Pos = pos
	c.Vel = Vec2{}
	c.Spin = Vec2{}
	c.Active = true
	// The cue ball is the one ball that returns from a pocket.
	c.Pocket = PocketNone
	c.PocketID = -1
	return nil
}

func (e *Engine) checkPlacement(pos Vec2, self int) error {
	r := e.params.BallRadius
	if !finiteVec(pos) || !e.table.Contains(pos) {
		return fmt.Errorf("%w: off the table", ErrBadPlacement)
	}
	if !e.table.ClearOfCushions(pos, r) {
		return fmt.Errorf("%w: touching a cushion", ErrBadPlacement)
	}
	for _, p := range e.table.Pockets {
		if pos.Sub(p.Centroid).Len() <= p.Radius+r {
			return fmt.Errorf("%w: over a pocket", ErrBadPlacement)
		}
	}
	for i := range e.balls {
		b := &e.balls[i]
		if !b.Active || b.Number == self {
			continue
		}
		if pos.Sub(b.Pos).Len() < 2*r {
			return fmt.Errorf("%w: overlaps ball %d", ErrBadPlacement, b.Number)
		}
	}
	return nil
}

// RespotCue returns the cue ball to the head spot, sliding toward the head
// rail and then sideways until it fits.
func (e *Engine) RespotCue() Vec2 {
	d := 2 * e.params.BallRadius
	spot := e.table.HeadSpot
	for step := 0; step < 64; step++ {
		for _, dy := range []float64{0, d, -d, 2 * d, -2 * d} {
			pos := Vec2{spot[0] - float64(step)*d/2, spot[1] + dy}
			if e.PlaceCue(pos) == nil {
				return pos
			}
		}
	}
	// Table too crowded to find a gap; accept the spot as is.
	c := e.cue()
	if c == nil {
		return spot
	}
	c.Pos, c.Vel, c.Spin = spot, Vec2{}, Vec2{}
	c.Active, c.Pocket, c.PocketID = true, PocketNone, -1
	return spot
}
