package physics

import "math"

// Grid is a uniform broad-phase over the table bounds. Cells are a flat
// slice reused between rebuilds; duplicate candidates are filtered with
// generation stamps so queries do not allocate.
type Grid struct {
	origin   Vec2
	cellSize float64
	inv      float64
	cols     int
	rows     int

	ballCells [][]int
	segCells  [][]int

	gen      uint32
	ballMark []uint32
	segMark  []uint32

	nearBalls []int
	nearSegs  []int
}

// NewGrid covers [min, max] with square cells of the given size.
func NewGrid(min, max Vec2, cellSize float64) *Grid {
	if cellSize <= 0 || !finite(cellSize) {
		cellSize = 1
	}
	cols := int(math.Ceil((max[0]-min[0])/cellSize)) + 1
	rows := int(math.Ceil((max[1]-min[1])/cellSize)) + 1
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Grid{
		origin:    min,
		cellSize:  cellSize,
		inv:       1 / cellSize,
		cols:      cols,
		rows:      rows,
		ballCells: make([][]int, cols*rows),
		segCells:  make([][]int, cols*rows),
	}
}

// cellRange returns the clamped inclusive cell bounds of a box.
func (g *Grid) cellRange(minX, minY, maxX, maxY float64) (c0, r0, c1, r1 int) {
	c0 = g.clampCol(int(math.Floor((minX - g.origin[0]) * g.inv)))
	c1 = g.clampCol(int(math.Floor((maxX - g.origin[0]) * g.inv)))
	r0 = g.clampRow(int(math.Floor((minY - g.origin[1]) * g.inv)))
	r1 = g.clampRow(int(math.Floor((maxY - g.origin[1]) * g.inv)))
	return
}

func (g *Grid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *Grid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// Rebuild clears every cell and inserts active balls and all segments.
func (g *Grid) Rebuild(balls []Ball, segs []Segment, radius float64) {
	for i := range g.ballCells {
		g.ballCells[i] = g.ballCells[i][:0]
		g.segCells[i] = g.segCells[i][:0]
	}
	if len(g.ballMark) < len(balls) {
		g.ballMark = make([]uint32, len(balls))
	}
	if len(g.segMark) < len(segs) {
		g.segMark = make([]uint32, len(segs))
	}

	for i := range balls {
		b := &balls[i]
		if !b.Active || !finiteVec(b.Pos) {
			continue
		}
		c0, r0, c1, r1 := g.cellRange(b.Pos[0]-radius, b.Pos[1]-radius, b.Pos[0]+radius, b.Pos[1]+radius)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				idx := r*g.cols + c
				g.ballCells[idx] = append(g.ballCells[idx], i)
			}
		}
	}

	for i := range segs {
		s := &segs[i]
		c0, r0, c1, r1 := g.cellRange(
			math.Min(s.A[0], s.B[0]), math.Min(s.A[1], s.B[1]),
			math.Max(s.A[0], s.B[0]), math.Max(s.A[1], s.B[1]),
		)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				idx := r*g.cols + c
				g.segCells[idx] = append(g.segCells[idx], i)
			}
		}
	}
}

// Query returns the balls and segments sharing a cell with ball i's
// bounding box inflated by radius. The returned slices are owned by the
// grid and valid until the next Query.
func (g *Grid) Query(i int, balls []Ball, radius float64) (near []int, segs []int) {
	g.nearBalls = g.nearBalls[:0]
	g.nearSegs = g.nearSegs[:0]

	g.gen++
	if g.gen == 0 {
		// wrapped; stale marks could alias the new generation
		for k := range g.ballMark {
			g.ballMark[k] = 0
		}
		for k := range g.segMark {
			g.segMark[k] = 0
		}
		g.gen = 1
	}

	b := &balls[i]
	ext := 2 * radius
	c0, r0, c1, r1 := g.cellRange(b.Pos[0]-ext, b.Pos[1]-ext, b.Pos[0]+ext, b.Pos[1]+ext)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			idx := r*g.cols + c
			for _, j := range g.ballCells[idx] {
				if j == i || g.ballMark[j] == g.gen {
					continue
				}
				g.ballMark[j] = g.gen
				g.nearBalls = append(g.nearBalls, j)
			}
			for _, s := range g.segCells[idx] {
				if g.segMark[s] == g.gen {
					continue
				}
				g.segMark[s] = g.gen
				g.nearSegs = append(g.nearSegs, s)
			}
		}
	}
	return g.nearBalls, g.nearSegs
}
