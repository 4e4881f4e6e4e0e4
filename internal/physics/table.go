package physics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTable is returned when table geometry cannot be simulated.
var ErrInvalidTable = errors.New("physics: invalid table geometry")

// Segment is one cushion edge. Normal points into the playing area.
type Segment struct {
	A, B    Vec2
	Normal  Vec2
	Opening bool // pocket mouth; balls pass through
}

// Pocket is a capture region. Centroid and Radius are derived once for the
// broad-phase reject.
type Pocket struct {
	ID       int
	Name     string
	Polygon  []Vec2
	Centroid Vec2
	Radius   float64
}

// TableSpec is the raw geometry a table is built from. It can be loaded
// from JSON so alternative layouts need no code change.
type TableSpec struct {
	Cushion  []Vec2   `json:"cushion" toml:"cushion"`
	Pockets  [][]Vec2 `json:"pockets" toml:"pockets"`
	Names    []string `json:"pocket_names,omitempty" toml:"pocket_names,omitempty"`
	HeadSpot Vec2     `json:"head_spot" toml:"head_spot"`
	FootSpot Vec2     `json:"foot_spot" toml:"foot_spot"`
	KitchenX float64  `json:"kitchen_x" toml:"kitchen_x"` // head string; the kitchen is x <= KitchenX
}

// Table is immutable once built.
type Table struct {
	Cushion  []Vec2
	Segments []Segment
	Pockets  []Pocket
	HeadSpot Vec2
	FootSpot Vec2
	KitchenX float64
	Min, Max Vec2
}

// NewTable validates spec and derives segments, openings and pocket bounds.
func NewTable(spec TableSpec, p Params) (*Table, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	t := &Table{
		Cushion:  append([]Vec2(nil), spec.Cushion...),
		HeadSpot: spec.HeadSpot,
		FootSpot: spec.FootSpot,
		KitchenX: spec.KitchenX,
	}

	for i, poly := range spec.Pockets {
		c := centroid(poly)
		var r float64
		for _, v := range poly {
			if d := v.Sub(c).Len(); d > r {
				r = d
			}
		}
		name := fmt.Sprintf("pocket-%d", i)
		if i < len(spec.Names) && spec.Names[i] != "" {
			name = spec.Names[i]
		}
		t.Pockets = append(t.Pockets, Pocket{
			ID:       i,
			Name:     name,
			Polygon:  append([]Vec2(nil), poly...),
			Centroid: c,
			Radius:   r,
		})
	}

	ccw := signedArea(spec.Cushion) > 0
	margin := p.PocketOpeningMargin * p.BallRadius
	n := len(spec.Cushion)
	for i := 0; i < n; i++ {
		a, b := spec.Cushion[i], spec.Cushion[(i+1)%n]
		dir, _, _ := unit(b.Sub(a))
		normal := perp(dir)
		if !ccw {
			normal = normal.Mul(-1)
		}
		t.Segments = append(t.Segments, Segment{
			A:       a,
			B:       b,
			Normal:  normal,
			Opening: t.nearPocket(a, margin) && t.nearPocket(b, margin),
		})
	}

	t.Min = Vec2{math.Inf(1), math.Inf(1)}
	t.Max = Vec2{math.Inf(-1), math.Inf(-1)}
	grow := func(v Vec2) {
		t.Min = Vec2{math.Min(t.Min[0], v[0]), math.Min(t.Min[1], v[1])}
		t.Max = Vec2{math.Max(t.Max[0], v[0]), math.Max(t.Max[1], v[1])}
	}
	for _, v := range t.Cushion {
		grow(v)
	}
	for _, pk := range t.Pockets {
		for _, v := range pk.Polygon {
			grow(v)
		}
	}

	if !t.Contains(t.HeadSpot) || !t.Contains(t.FootSpot) {
		return nil, fmt.Errorf("%w: head and foot spots must lie inside the cushion", ErrInvalidTable)
	}
	return t, nil
}

func validateSpec(spec TableSpec) error {
	if len(spec.Cushion) < 3 {
		return fmt.Errorf("%w: cushion needs at least 3 vertices, got %d", ErrInvalidTable, len(spec.Cushion))
	}
	for i, v := range spec.Cushion {
		if !finiteVec(v) {
			return fmt.Errorf("%w: cushion vertex %d is not finite", ErrInvalidTable, i)
		}
		next := spec.Cushion[(i+1)%len(spec.Cushion)]
		if next.Sub(v).Len() < epsLen {
			return fmt.Errorf("%w: cushion edge %d has zero length", ErrInvalidTable, i)
		}
	}
	if math.Abs(signedArea(spec.Cushion)) < epsLen {
		return fmt.Errorf("%w: cushion encloses no area", ErrInvalidTable)
	}
	if len(spec.Pockets) == 0 {
		return fmt.Errorf("%w: no pockets", ErrInvalidTable)
	}
	for i, poly := range spec.Pockets {
		if len(poly) < 3 {
			return fmt.Errorf("%w: pocket %d needs at least 3 vertices", ErrInvalidTable, i)
		}
		for _, v := range poly {
			if !finiteVec(v) {
				return fmt.Errorf("%w: pocket %d has a non-finite vertex", ErrInvalidTable, i)
			}
		}
		if math.Abs(signedArea(poly)) < epsLen {
			return fmt.Errorf("%w: pocket %d encloses no area", ErrInvalidTable, i)
		}
	}
	if !finiteVec(spec.HeadSpot) || !finiteVec(spec.FootSpot) || !finite(spec.KitchenX) {
		return fmt.Errorf("%w: spots must be finite", ErrInvalidTable)
	}
	return nil
}

func (t *Table) nearPocket(v Vec2, margin float64) bool {
	for _, pk := range t.Pockets {
		if v.Sub(pk.Centroid).Len() <= pk.Radius+margin {
			return true
		}
	}
	return false
}

// Contains reports whether p lies inside the cushion polyline.
func (t *Table) Contains(p Vec2) bool {
	return pointInPolygon(p, t.Cushion)
}

// ClearOfCushions reports whether a disc of radius r at p touches no solid cushion.
func (t *Table) ClearOfCushions(p Vec2, r float64) bool {
	for i := range t.Segments {
		s := &t.Segments[i]
		if s.Opening {
			continue
		}
		if p.Sub(closestPointOnSegment(p, s.A, s.B)).Len() < r {
			return false
		}
	}
	return true
}

// InKitchen reports whether p is behind the head string.
func (t *Table) InKitchen(p Vec2) bool {
	return p[0] <= t.KitchenX
}

// Openings returns the indices of pocket mouth segments.
func (t *Table) Openings() []int {
	var out []int
	for i, s := range t.Segments {
		if s.Opening {
			out = append(out, i)
		}
	}
	return out
}

// Standard table: 100 x 50 units of cloth, centered on the origin, foot end at +x.
const (
	halfLength = 50.0
	halfWidth  = 25.0

	cornerMouth = 3.0 // cushion set-back from the corner
	cornerJaw   = 1.5 // jaw depth into a corner pocket
	sideMouth   = 3.0 // half width of a side pocket mouth
	sideNarrow  = 0.8 // side jaw taper
	sideJaw     = 1.4 // jaw depth into a side pocket
	pocketSize  = 2.4
)

// StandardTableSpec returns the six-pocket 8-ball layout.
func StandardTableSpec() TableSpec {
	W, H := halfLength, halfWidth
	cm, cj := cornerMouth, cornerJaw
	sm, sn, sj := sideMouth, sideNarrow, sideJaw

	cushion := []Vec2{
		// top-left corner
		{-W, -H + cm}, {-W - cj, -H + cm - cj}, {-W + cm - cj, -H - cj}, {-W + cm, -H},
		// top side pocket
		{-sm, -H}, {-sm + sn, -H - sj}, {sm - sn, -H - sj}, {sm, -H},
		// top-right corner
		{W - cm, -H}, {W - cm + cj, -H - cj}, {W + cj, -H + cm - cj}, {W, -H + cm},
		// bottom-right corner
		{W, H - cm}, {W + cj, H - cm + cj}, {W - cm + cj, H + cj}, {W - cm, H},
		// bottom side pocket
		{sm, H}, {sm - sn, H + sj}, {-sm + sn, H + sj}, {-sm, H},
		// bottom-left corner
		{-W + cm, H}, {-W + cm - cj, H + cj}, {-W - cj, H - cm + cj}, {-W, H - cm},
	}

	centers := []Vec2{
		{-W - 1, -H - 1},
		{0, -H - 1.5},
		{W + 1, -H - 1},
		{W + 1, H + 1},
		{0, H + 1.5},
		{-W - 1, H + 1},
	}
	pockets := make([][]Vec2, len(centers))
	for i, c := range centers {
		pockets[i] = octagon(c, pocketSize)
	}

	return TableSpec{
		Cushion:  cushion,
		Pockets:  pockets,
		Names:    []string{"top-left", "top-side", "top-right", "bottom-right", "bottom-side", "bottom-left"},
		HeadSpot: Vec2{-W / 2, 0},
		FootSpot: Vec2{W / 2, 0},
		KitchenX: -W / 2,
	}
}

// NewStandardTable builds the standard table for p.
func NewStandardTable(p Params) (*Table, error) {
	return NewTable(StandardTableSpec(), p)
}

func octagon(c Vec2, r float64) []Vec2 {
	out := make([]Vec2, 8)
	for i := range out {
		a := float64(i) * math.Pi / 4
		out[i] = Vec2{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)}
	}
	return out
}

// rackRows lists each row of the triangle from the apex outward, low y to high y.
var rackRows = [][]int{
	{1},
	{15, 2},
	{10, 8, 5},
	{6, 9, 7, 4},
	{3, 13, 11, 12, 14},
}

// RackPositions returns the starting center of every ball: the cue on the
// head spot and the triangle with its apex on the foot spot.
func (t *Table) RackPositions(radius float64) map[int]Vec2 {
	const gap = 1.01
	d := 2 * radius * gap
	rowStep := d * math.Sqrt(3) / 2

	pos := map[int]Vec2{CueBall: t.HeadSpot}
	for k, row := range rackRows {
		x := t.FootSpot[0] + float64(k)*rowStep
		for j, num := range row {
			y := t.FootSpot[1] + (float64(j)-float64(k)/2)*d
			pos[num] = Vec2{x, y}
		}
	}
	return pos
}
