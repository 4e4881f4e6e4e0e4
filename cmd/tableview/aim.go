package main

import (
	"math"

	"github.com/playpool/billiards/internal/physics"
)

const (
	aimStep      = math.Pi / 90
	aimFineStep  = math.Pi / 720
	powerStep    = 0.05
	spinStep     = 0.1
	placeStepRad = 0.5 // ghost cue moves this many ball radii per key
)

// aim is the cue the current player is lining up.
type aim struct {
	angle float64
	power float64
	spin  physics.Vec2
}

func newAim() aim {
	return aim{power: 0.5}
}

func (a *aim) rotate(d float64) {
	a.angle = math.Mod(a.angle+d, 2*math.Pi)
	if a.angle < 0 {
		a.angle += 2 * math.Pi
	}
}

func (a *aim) adjustPower(d float64) {
	a.power = clamp(a.power+d, powerStep, 1)
}

func (a *aim) adjustSpin(dx, dy float64) {
	a.spin = physics.V(clamp(a.spin.X()+dx, -1, 1), clamp(a.spin.Y()+dy, -1, 1))
}

func (a *aim) direction() physics.Vec2 {
	return physics.V(math.Cos(a.angle), math.Sin(a.angle))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
