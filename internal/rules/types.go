// Package rules implements 8-ball turn sequencing and foul evaluation.
package rules

import (
	"errors"
	"time"

	"github.com/playpool/billiards/internal/physics"
)

var (
	ErrGameOver   = errors.New("rules: game is over")
	ErrWrongPhase = errors.New("rules: not allowed in the current phase")
)

// Group is a player's target set of balls.
type Group uint8

const (
	GroupOpen Group = iota
	GroupSolids
	GroupStripes
)

func (g Group) String() string {
	switch g {
	case GroupSolids:
		return "solids"
	case GroupStripes:
		return "stripes"
	}
	return "open"
}

func (g Group) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Group) UnmarshalText(b []byte) error {
	switch string(b) {
	case "solids":
		*g = GroupSolids
	case "stripes":
		*g = GroupStripes
	default:
		*g = GroupOpen
	}
	return nil
}

// Complement returns the other player's group once groups are assigned.
func (g Group) Complement() Group {
	switch g {
	case GroupSolids:
		return GroupStripes
	case GroupStripes:
		return GroupSolids
	}
	return GroupOpen
}

// GroupOf returns the group a ball number belongs to. The cue ball and the
// money ball belong to no group.
func GroupOf(number int) Group {
	switch physics.KindOf(number) {
	case physics.KindSolid:
		return GroupSolids
	case physics.KindStripe:
		return GroupStripes
	}
	return GroupOpen
}

// Phase is the turn state machine position.
type Phase uint8

const (
	PhaseAiming Phase = iota
	PhaseShotInProgress
	PhaseReview
	PhaseBallInHand
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseAiming:
		return "aiming"
	case PhaseShotInProgress:
		return "shot_in_progress"
	case PhaseReview:
		return "review"
	case PhaseBallInHand:
		return "ball_in_hand"
	case PhaseGameOver:
		return "game_over"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseAiming; c <= PhaseGameOver; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return ErrWrongPhase
}

// FoulReason names the first foul found in a turn.
type FoulReason uint8

const (
	FoulNone FoulReason = iota
	FoulScratch
	FoulNoContact
	FoulWrongFirstContact
	FoulNoRail
	FoulTimeout
)

func (r FoulReason) String() string {
	switch r {
	case FoulScratch:
		return "scratch"
	case FoulNoContact:
		return "no_contact"
	case FoulWrongFirstContact:
		return "wrong_first_contact"
	case FoulNoRail:
		return "no_rail"
	case FoulTimeout:
		return "timeout"
	}
	return ""
}

// Message is a human readable description for UIs.
func (r FoulReason) Message() string {
	switch r {
	case FoulScratch:
		return "Cue ball pocketed"
	case FoulNoContact:
		return "Cue ball did not hit any ball"
	case FoulWrongFirstContact:
		return "Hit the wrong ball first"
	case FoulNoRail:
		return "No ball reached a cushion after contact"
	case FoulTimeout:
		return "Shot clock expired"
	}
	return ""
}

func (r FoulReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *FoulReason) UnmarshalText(b []byte) error {
	for c := FoulNone; c <= FoulTimeout; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	*r = FoulNone
	return nil
}

// Table is what the evaluator needs from the simulation.
type Table interface {
	// RemainingInGroup counts balls of g still in play.
	RemainingInGroup(g Group) int
	// RespotCue returns a pocketed cue ball to the table.
	RespotCue()
}

// Facts are gathered while a shot runs and cleared after evaluation.
type Facts struct {
	FirstHit         int   `json:"first_hit"` // ball number, -1 when nothing was struck
	Pocketed         []int `json:"pocketed"`
	Scratch          bool  `json:"scratch"`
	RailAfterContact bool  `json:"rail_after_contact"`
	TimedOut         bool  `json:"timed_out"`
}

func freshFacts() Facts {
	return Facts{FirstHit: -1}
}

func (f Facts) clone() Facts {
	f.Pocketed = append([]int(nil), f.Pocketed...)
	return f
}

// TurnResult is produced exactly once per completed turn.
type TurnResult struct {
	TurnNumber       int        `json:"turn"`
	Shooter          int        `json:"shooter"`
	FoulCommitted    bool       `json:"foul"`
	Reason           FoulReason `json:"reason,omitempty"`
	Message          string     `json:"message,omitempty"`
	NextPlayer       int        `json:"next_player"`
	BallInHand       bool       `json:"ball_in_hand"`
	BehindHeadString bool       `json:"behind_head_string,omitempty"`
	GameOver         bool       `json:"game_over"`
	Winner           int        `json:"winner,omitempty"`
	GroupAssigned    bool       `json:"group_assigned,omitempty"`
	Groups           [2]Group   `json:"groups"`
	Pocketed         []int      `json:"pocketed"`
	FirstHit         int        `json:"first_hit"`
	Break            bool       `json:"break,omitempty"`
}

// Options tune the rule set.
type Options struct {
	TurnTimeLimit           time.Duration
	RequireRailAfterContact bool
}
