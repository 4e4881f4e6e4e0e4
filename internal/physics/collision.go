package physics

// separate pushes a and b apart symmetrically along the line of centers.
// It returns the normal from a to b and whether they overlapped.
func (e *Engine) separate(a, b *Ball) (Vec2, bool) {
	minDist := 2 * e.params.BallRadius
	n, dist, ok := unit(b.Pos.Sub(a.Pos))
	if dist >= minDist && ok {
		return Vec2{}, false
	}
	if !ok {
		// coincident centers; any axis will do
		n = Vec2{1, 0}
		dist = 0
	}
	half := (minDist - dist) / 2
	a.Pos = a.Pos.Sub(n.Mul(half))
	b.Pos = b.Pos.Add(n.Mul(half))
	return n, true
}

func (e *Engine) collideBalls(a, b *Ball) {
	n, touching := e.separate(a, b)
	if !touching {
		return
	}

	closing := b.Vel.Sub(a.Vel).Dot(n)
	if closing >= 0 {
		return
	}

	p := e.params
	j := (1 + p.BallRestitution) * -closing / 2
	if !finite(j) {
		j = 0
	}
	a.Vel = a.Vel.Sub(n.Mul(j))
	b.Vel = b.Vel.Add(n.Mul(j))

	mag := -closing
	if !finite(mag) {
		mag = 0
	}
	e.frame.Impacts = append(e.frame.Impacts, Impact{
		Kind:      ImpactBall,
		Ball:      a.Number,
		Other:     b.Number,
		Magnitude: mag,
	})

	switch {
	case a.IsCue():
		e.recordFirstHit(b.Number)
		e.applyCueSpin(a, n)
	case b.IsCue():
		e.recordFirstHit(a.Number)
		e.applyCueSpin(b, n.Mul(-1))
	}

	a.Vel = clampSpeed(a.Vel, p.MaxSpeed)
	b.Vel = clampSpeed(b.Vel, p.MaxSpeed)
}

func (e *Engine) recordFirstHit(number int) {
	if e.shot.FirstHit >= 0 {
		return
	}
	e.shot.FirstHit = number
	e.frame.FirstHit = number
}

// applyCueSpin bends the cue ball's path after contact. toward is the
// normal from the cue to the struck ball; it stands in for the travel
// direction when the cue has been stunned to a stop. The effect scales with
// how hard the shot was struck, not the speed left at contact.
func (e *Engine) applyCueSpin(c *Ball, toward Vec2) {
	if c.Spin[0] == 0 && c.Spin[1] == 0 {
		return
	}
	p := e.params
	power := e.shot.InitialSpeed

	dir, speed, ok := unit(c.Vel)
	if !ok || speed < p.RestSpeed {
		dir = toward
	}
	if c.Spin[1] != 0 {
		c.Vel = c.Vel.Add(dir.Mul(c.Spin[1] * p.FollowDraw * power))
		c.Spin[1] *= 1 - p.SpinUse
	}
	if c.Spin[0] != 0 {
		c.Vel = c.Vel.Add(perp(dir).Mul(c.Spin[0] * p.SideTransfer * power))
		c.Spin[0] *= 1 - p.SpinUse
	}
}

// relax removes overlaps left inside clusters after the impulse pass. It is
// purely positional; velocities are already resolved.
func (e *Engine) relax() {
	r := e.params.BallRadius
	const tolerance = 1e-9
	for iter := 0; iter < e.params.SolverIterations; iter++ {
		worst := 0.0
		e.grid.Rebuild(e.balls, e.table.Segments, r)
		for i := range e.balls {
			a := &e.balls[i]
			if !a.Active {
				continue
			}
			near, segs := e.grid.Query(i, e.balls, r)
			for _, j := range near {
				b := &e.balls[j]
				if j <= i || !b.Active {
					continue
				}
				if gap := 2*r - a.Pos.Sub(b.Pos).Len(); gap > tolerance {
					if gap > worst {
						worst = gap
					}
					e.separate(a, b)
				}
			}
			for _, si := range segs {
				s := &e.table.Segments[si]
				if s.Opening {
					continue
				}
				e.pushOutOfCushion(a, s)
			}
		}
		if worst <= tolerance {
			return
		}
	}
}
