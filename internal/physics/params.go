package physics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when a Params value cannot drive a stable simulation.
var ErrInvalidParams = errors.New("physics: invalid parameters")

// Params holds every tunable of the simulation. The friction and spin values
// are tuned for feel, not derived from a physical model.
type Params struct {
	BallRadius float64 `json:"ball_radius"`

	// Integration
	VelocityScale    float64 `json:"velocity_scale"`
	SubStepFraction  float64 `json:"sub_step_fraction"` // max travel per sub-step, in radii
	MaxSubSteps      int     `json:"max_sub_steps"`
	MaxFrameDelta    float64 `json:"max_frame_delta"` // seconds; longer frames are clamped
	SolverIterations int     `json:"solver_iterations"`

	// Friction (units/s²) and spin decay
	SlidingFriction  float64 `json:"sliding_friction"`
	RollingFriction  float64 `json:"rolling_friction"`
	SlidingThreshold float64 `json:"sliding_threshold"` // speed above which sliding friction applies
	SpinRetention    float64 `json:"spin_retention"`    // fraction of spin left after one second

	// Restitution
	CushionRestitution float64 `json:"cushion_restitution"`
	BallRestitution    float64 `json:"ball_restitution"`

	// Spin on cushion impact
	CushionSideSpin float64 `json:"cushion_side_spin"`
	CushionBite     float64 `json:"cushion_bite"`
	CushionSpinUse  float64 `json:"cushion_spin_use"`

	// Spin on ball impact
	FollowDraw   float64 `json:"follow_draw"`
	SideTransfer float64 `json:"side_transfer"`
	SpinUse      float64 `json:"spin_use"`

	// Speeds (units/s)
	MaxSpeed     float64 `json:"max_speed"`
	MaxShotSpeed float64 `json:"max_shot_speed"`
	RestSpeed    float64 `json:"rest_speed"`

	// Geometry helpers
	GridCellFactor      float64 `json:"grid_cell_factor"`      // cell size in ball diameters
	PocketOpeningMargin float64 `json:"pocket_opening_margin"` // in radii, added to pocket radius
}

// DefaultParams returns the tuning used by the standard table.
func DefaultParams() Params {
	return Params{
		BallRadius: 1.25,

		VelocityScale:    1.0,
		SubStepFraction:  0.2,
		MaxSubSteps:      512,
		MaxFrameDelta:    0.25,
		SolverIterations: 8,

		SlidingFriction:  40,
		RollingFriction:  12,
		SlidingThreshold: 30,
		SpinRetention:    0.35,

		CushionRestitution: 0.8,
		BallRestitution:    0.95,

		CushionSideSpin: 0.3,
		CushionBite:     0.15,
		CushionSpinUse:  0.5,

		FollowDraw:   0.35,
		SideTransfer: 0.15,
		SpinUse:      0.3,

		MaxSpeed:     150,
		MaxShotSpeed: 120,
		RestSpeed:    0.05,

		GridCellFactor:      2,
		PocketOpeningMargin: 0.5,
	}
}

// Validate reports the first parameter that would make the simulation unstable.
func (p Params) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"ball_radius", p.BallRadius},
		{"velocity_scale", p.VelocityScale},
		{"sub_step_fraction", p.SubStepFraction},
		{"max_frame_delta", p.MaxFrameDelta},
		{"max_speed", p.MaxSpeed},
		{"max_shot_speed", p.MaxShotSpeed},
		{"rest_speed", p.RestSpeed},
		{"grid_cell_factor", p.GridCellFactor},
	}
	for _, f := range positive {
		if !finite(f.v) || f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParams, f.name, f.v)
		}
	}

	fractions := []struct {
		name string
		v    float64
	}{
		{"spin_retention", p.SpinRetention},
		{"cushion_restitution", p.CushionRestitution},
		{"ball_restitution", p.BallRestitution},
		{"cushion_spin_use", p.CushionSpinUse},
		{"spin_use", p.SpinUse},
	}
	for _, f := range fractions {
		if !finite(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidParams, f.name, f.v)
		}
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"sliding_friction", p.SlidingFriction},
		{"rolling_friction", p.RollingFriction},
		{"sliding_threshold", p.SlidingThreshold},
		{"cushion_side_spin", p.CushionSideSpin},
		{"cushion_bite", p.CushionBite},
		{"follow_draw", p.FollowDraw},
		{"side_transfer", p.SideTransfer},
		{"pocket_opening_margin", p.PocketOpeningMargin},
	}
	for _, f := range nonNegative {
		if !finite(f.v) || f.v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidParams, f.name, f.v)
		}
	}

	if p.SubStepFraction > 1 {
		return fmt.Errorf("%w: sub_step_fraction above 1 allows tunneling", ErrInvalidParams)
	}
	if p.MaxShotSpeed > p.MaxSpeed {
		return fmt.Errorf("%w: max_shot_speed exceeds max_speed", ErrInvalidParams)
	}
	if p.SolverIterations < 0 {
		return fmt.Errorf("%w: solver_iterations must not be negative", ErrInvalidParams)
	}

	// The worst frame must still fit inside the sub-step budget.
	worst := int(math.Ceil(p.MaxSpeed * p.MaxFrameDelta * p.VelocityScale / (p.BallRadius * p.SubStepFraction)))
	if p.MaxSubSteps < worst {
		return fmt.Errorf("%w: max_sub_steps %d below worst case %d", ErrInvalidParams, p.MaxSubSteps, worst)
	}
	return nil
}

// stepBound is the farthest a ball may travel in one sub-step.
func (p Params) stepBound() float64 {
	return p.BallRadius * p.SubStepFraction
}
