package physics

// detectPockets collects every active ball whose center lies inside a pocket.
// A ball is reported once; collected balls are never tested again.
func (e *Engine) detectPockets() {
	for i := range e.balls {
		b := &e.balls[i]
		if !b.Active || b.Pocket == PocketCollected {
			continue
		}
		for k := range e.table.Pockets {
			pk := &e.table.Pockets[k]
			if b.Pos.Sub(pk.Centroid).Len() > pk.Radius {
				continue
			}
			if !pointInPolygon(b.Pos, pk.Polygon) {
				continue
			}
			e.collect(b, pk.ID)
			break
		}
	}
}

func (e *Engine) collect(b *Ball, pocketID int) {
	if !b.advancePocket(PocketFalling) {
		return
	}
	b.Vel = Vec2{}
	b.Spin = Vec2{}
	b.Active = false
	b.PocketID = pocketID
	b.advancePocket(PocketCollected)
	e.frame.Pocketed = append(e.frame.Pocketed, PocketEvent{Number: b.Number, PocketID: pocketID})
}
