package physics

// pushOutOfCushion moves b clear of segment s. It returns the contact normal
// and whether the ball was touching.
func (e *Engine) pushOutOfCushion(b *Ball, s *Segment) (Vec2, bool) {
	r := e.params.BallRadius
	q := closestPointOnSegment(b.Pos, s.A, s.B)
	n, dist, ok := unit(b.Pos.Sub(q))
	if dist >= r {
		return Vec2{}, false
	}
	if !ok {
		n = s.Normal
	}
	b.Pos = q.Add(n.Mul(r))
	return n, true
}

// collideCushion resolves b against segment index si. Pocket mouths are skipped.
func (e *Engine) collideCushion(b *Ball, si int) {
	s := &e.table.Segments[si]
	if s.Opening {
		return
	}
	n, touching := e.pushOutOfCushion(b, s)
	if !touching {
		return
	}

	vn := b.Vel.Dot(n)
	if vn >= 0 {
		return
	}

	p := e.params
	tangent := b.Vel.Sub(n.Mul(vn))
	rebound := -vn * p.CushionRestitution
	if b.IsCue() && (b.Spin[0] != 0 || b.Spin[1] != 0) {
		tangent = tangent.Add(perp(n).Mul(b.Spin[0] * p.CushionSideSpin * -vn))
		bite := 1 - p.CushionBite*b.Spin[1]
		if bite < 0 {
			bite = 0
		}
		rebound *= bite
		b.Spin = b.Spin.Mul(1 - p.CushionSpinUse)
	}
	b.Vel = clampSpeed(tangent.Add(n.Mul(rebound)), p.MaxSpeed)

	mag := -vn
	if !finite(mag) {
		mag = 0
	}
	e.frame.Impacts = append(e.frame.Impacts, Impact{
		Kind:      ImpactCushion,
		Ball:      b.Number,
		Other:     si,
		Magnitude: mag,
	})
	if e.shot.FirstHit >= 0 {
		e.shot.RailAfterHit = true
	}
}
