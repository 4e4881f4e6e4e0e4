package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec2 is the simulation vector type. All coordinates are table units.
type Vec2 = mgl64.Vec2

// epsLen is the shortest vector the simulation will normalize.
const epsLen = 1e-9

// V builds a Vec2.
func V(x, y float64) Vec2 {
	return Vec2{x, y}
}

// unit returns v scaled to length 1 together with its original length.
// Zero-length and non-finite vectors report ok == false.
func unit(v Vec2) (dir Vec2, length float64, ok bool) {
	length = v.Len()
	if length < epsLen || !finite(length) {
		return Vec2{}, 0, false
	}
	return v.Mul(1 / length), length, true
}

// perp returns the left normal of v.
func perp(v Vec2) Vec2 {
	return Vec2{-v[1], v[0]}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v Vec2) bool {
	return finite(v[0]) && finite(v[1])
}

// clampSpeed limits the magnitude of v to max. Non-finite input collapses to zero.
func clampSpeed(v Vec2, max float64) Vec2 {
	if !finiteVec(v) {
		return Vec2{}
	}
	s := v.Len()
	if s <= max {
		return v
	}
	return v.Mul(max / s)
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// closestPointOnSegment returns the point of segment ab nearest to p.
func closestPointOnSegment(p, a, b Vec2) Vec2 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 < epsLen {
		return a
	}
	t := clamp(p.Sub(a).Dot(ab)/l2, 0, 1)
	return a.Add(ab.Mul(t))
}

// pointInPolygon is the even-odd ray casting test.
func pointInPolygon(p Vec2, poly []Vec2) bool {
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		pi, pj := poly[i], poly[j]
		if (pi[1] > p[1]) != (pj[1] > p[1]) {
			x := (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if p[0] < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// signedArea is positive for counter-clockwise polygons (y up).
func signedArea(poly []Vec2) float64 {
	var a float64
	j := len(poly) - 1
	for i := range poly {
		a += poly[j][0]*poly[i][1] - poly[i][0]*poly[j][1]
		j = i
	}
	return a / 2
}

// centroid returns the area centroid of a simple polygon.
func centroid(poly []Vec2) Vec2 {
	area := signedArea(poly)
	if math.Abs(area) < epsLen {
		var sum Vec2
		for _, p := range poly {
			sum = sum.Add(p)
		}
		return sum.Mul(1 / float64(len(poly)))
	}
	var cx, cy float64
	j := len(poly) - 1
	for i := range poly {
		cross := poly[j][0]*poly[i][1] - poly[i][0]*poly[j][1]
		cx += (poly[j][0] + poly[i][0]) * cross
		cy += (poly[j][1] + poly[i][1]) * cross
		j = i
	}
	f := 1 / (6 * area)
	return Vec2{cx * f, cy * f}
}
