package physics

import (
	"errors"
	"math"
	"testing"
)

func TestStandardTableGeometry(t *testing.T) {
	p := DefaultParams()
	table, err := NewStandardTable(p)
	if err != nil {
		t.Fatalf("standard table: %v", err)
	}
	if len(table.Pockets) != 6 {
		t.Errorf("pockets = %d, want 6", len(table.Pockets))
	}
	if got := len(table.Openings()); got != 6 {
		t.Errorf("openings = %d, want one per pocket", got)
	}
	for _, s := range table.Segments {
		mid := s.A.Add(s.B).Mul(0.5)
		probe := mid.Add(s.Normal.Mul(0.01))
		if !table.Contains(probe) {
			t.Errorf("normal of segment %v-%v points out of the table", s.A, s.B)
		}
	}
	if !table.InKitchen(table.HeadSpot) || table.InKitchen(table.FootSpot) {
		t.Errorf("kitchen line misplaced: %v", table.KitchenX)
	}
}

func TestRackPositionsFitOnTable(t *testing.T) {
	p := DefaultParams()
	table, err := NewStandardTable(p)
	if err != nil {
		t.Fatalf("standard table: %v", err)
	}
	pos := table.RackPositions(p.BallRadius)
	if len(pos) != NumBalls {
		t.Fatalf("rack has %d balls", len(pos))
	}
	for n, a := range pos {
		if !table.Contains(a) || !table.ClearOfCushions(a, p.BallRadius) {
			t.Errorf("ball %d at %v is not clear of the cushions", n, a)
		}
		for m, b := range pos {
			if m != n && a.Sub(b).Len() < 2*p.BallRadius {
				t.Errorf("balls %d and %d overlap in the rack", n, m)
			}
		}
	}
	if pos[MoneyBall][0] != pos[10][0] || math.Abs(pos[MoneyBall][1]-table.FootSpot[1]) > 1e-9 {
		t.Errorf("money ball should sit in the middle of the third row: %v", pos[MoneyBall])
	}
}

func TestInvalidTableFailsFast(t *testing.T) {
	good := StandardTableSpec()
	cases := []struct {
		name   string
		mutate func(*TableSpec)
	}{
		{"too few cushion vertices", func(s *TableSpec) { s.Cushion = s.Cushion[:2] }},
		{"non-finite vertex", func(s *TableSpec) { s.Cushion[3] = V(math.NaN(), 0) }},
		{"repeated vertex", func(s *TableSpec) { s.Cushion[4] = s.Cushion[3] }},
		{"no pockets", func(s *TableSpec) { s.Pockets = nil }},
		{"degenerate pocket", func(s *TableSpec) { s.Pockets[0] = []Vec2{{0, 0}, {1, 1}, {2, 2}} }},
		{"head spot off table", func(s *TableSpec) { s.HeadSpot = V(-80, 0) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := good
			spec.Cushion = append([]Vec2(nil), good.Cushion...)
			spec.Pockets = append([][]Vec2(nil), good.Pockets...)
			tc.mutate(&spec)
			if _, err := NewTable(spec, DefaultParams()); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("err = %v, want ErrInvalidTable", err)
			}
		})
	}

	if _, err := NewEngine(nil, DefaultParams()); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("nil table: err = %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cases := map[string]func(*Params){
		"zero radius":         func(p *Params) { p.BallRadius = 0 },
		"restitution above 1": func(p *Params) { p.BallRestitution = 1.2 },
		"negative friction":   func(p *Params) { p.RollingFriction = -1 },
		"fraction above 1":    func(p *Params) { p.SubStepFraction = 1.5 },
		"sub-step budget":     func(p *Params) { p.MaxSubSteps = 3 },
		"shot above max":      func(p *Params) { p.MaxShotSpeed = p.MaxSpeed + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Vec2{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	if !pointInPolygon(V(2, 2), square) {
		t.Errorf("center should be inside")
	}
	if pointInPolygon(V(5, 2), square) || pointInPolygon(V(2, -1), square) {
		t.Errorf("outside point reported inside")
	}
}
