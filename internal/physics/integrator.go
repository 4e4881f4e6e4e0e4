package physics

import "math"

// Step advances the simulation by dt seconds of wall time. The frame is
// split into sub-steps short enough that no ball travels more than
// SubStepFraction radii in any one of them. If MaxSubSteps runs out first,
// the unspent time is dropped and reported in FrameResult.Truncated.
func (e *Engine) Step(dt float64) FrameResult {
	e.frame = FrameResult{FirstHit: -1}
	if !finite(dt) || dt <= 0 || len(e.balls) == 0 {
		return e.frame
	}
	if dt > e.params.MaxFrameDelta {
		dt = e.params.MaxFrameDelta
	}

	total := dt * e.params.VelocityScale
	remaining := total
	bound := e.params.stepBound()

	steps := e.planSubSteps(remaining)
	subDt := remaining / float64(steps)
	taken := 0
	for i := 0; i < steps && taken < e.params.MaxSubSteps; i++ {
		peak := e.peakSpeed()
		if peak*subDt > bound {
			// A collision sped something up; re-plan what is left of the frame.
			left := e.planSubSteps(remaining)
			steps = i + left
			subDt = remaining / float64(left)
		}
		if travel := peak * subDt; travel > e.frame.MaxStepTravel {
			e.frame.MaxStepTravel = travel
		}
		e.subStep(subDt)
		remaining -= subDt
		taken++
	}

	e.frame.SubSteps = taken
	e.frame.SubTimeStep = subDt
	if remaining > total*1e-9 {
		e.frame.Truncated = remaining
	}
	return e.frame
}

// planSubSteps returns how many sub-steps span timeStep at the current peak speed.
func (e *Engine) planSubSteps(timeStep float64) int {
	n := int(math.Ceil(e.peakSpeed() * timeStep / e.params.stepBound()))
	if n < 1 {
		n = 1
	}
	if n > e.params.MaxSubSteps {
		n = e.params.MaxSubSteps
	}
	return n
}

func (e *Engine) peakSpeed() float64 {
	var peak float64
	for i := range e.balls {
		b := &e.balls[i]
		if !b.Active {
			continue
		}
		if s := b.Speed(); s > peak {
			peak = s
		}
	}
	return peak
}

func (e *Engine) subStep(h float64) {
	e.integrate(h)

	r := e.params.BallRadius
	e.grid.Rebuild(e.balls, e.table.Segments, r)
	for i := range e.balls {
		if !e.balls[i].Active {
			continue
		}
		near, segs := e.grid.Query(i, e.balls, r)
		for _, s := range segs {
			e.collideCushion(&e.balls[i], s)
		}
		for _, j := range near {
			// each unordered pair once
			if j <= i || !e.balls[j].Active {
				continue
			}
			e.collideBalls(&e.balls[i], &e.balls[j])
		}
	}
	e.relax()
	e.detectPockets()
}

// integrate applies friction and spin decay, then moves every active ball.
func (e *Engine) integrate(h float64) {
	p := e.params
	spinKeep := math.Pow(p.SpinRetention, h)
	for i := range e.balls {
		b := &e.balls[i]
		if !b.Active {
			continue
		}
		if speed := b.Speed(); speed > 0 {
			decel := p.RollingFriction
			if speed > p.SlidingThreshold {
				decel = p.SlidingFriction
			}
			next := speed - decel*h
			if next <= 0 || !finite(next) {
				b.Vel = Vec2{}
			} else {
				b.Vel = b.Vel.Mul(next / speed)
			}
		}
		b.Spin = b.Spin.Mul(spinKeep)

		d := b.Vel.Mul(h)
		b.Pos = b.Pos.Add(d)
		b.Traveled += d.Len()
	}
}
