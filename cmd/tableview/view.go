package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

const hudRows = 3

// viewport maps table coordinates onto terminal cells.
type viewport struct {
	min, max physics.Vec2
	w, h     int
}

func newViewport(t *physics.Table, screenW, screenH int) viewport {
	return viewport{
		min: t.Min,
		max: t.Max,
		w:   max(screenW, 2),
		h:   max(screenH-hudRows, 2),
	}
}

func (v viewport) cell(p physics.Vec2) (int, int) {
	fx := (p.X() - v.min.X()) / (v.max.X() - v.min.X())
	fy := (p.Y() - v.min.Y()) / (v.max.Y() - v.min.Y())
	x := int(math.Round(fx * float64(v.w-1)))
	y := int(math.Round(fy * float64(v.h-1)))
	return x, y
}

func (v viewport) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < v.w && y < v.h
}

// point returns the table position at the centre of cell (x, y).
func (v viewport) point(x, y int) physics.Vec2 {
	fx := float64(x) / float64(v.w-1)
	fy := float64(y) / float64(v.h-1)
	return physics.V(v.min.X()+fx*(v.max.X()-v.min.X()), v.min.Y()+fy*(v.max.Y()-v.min.Y()))
}

var ballColors = [8]tcell.Color{
	tcell.ColorWhite,
	tcell.ColorYellow,
	tcell.ColorBlue,
	tcell.ColorRed,
	tcell.ColorPurple,
	tcell.ColorOrange,
	tcell.ColorGreen,
	tcell.ColorMaroon,
}

// ballGlyph draws solids as digits and stripes as hex letters in reverse.
func ballGlyph(n int) (rune, tcell.Style) {
	base := tcell.StyleDefault.Background(tcell.ColorDarkGreen)
	switch {
	case n == 0:
		return 'o', base.Foreground(tcell.ColorWhite).Bold(true)
	case n == 8:
		return '8', tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack).Bold(true)
	case n < 8:
		return rune('0' + n), base.Foreground(ballColors[n]).Bold(true)
	default:
		return rune(strings.ToUpper(fmt.Sprintf("%x", n))[0]), tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(ballColors[n-8])
	}
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

// drawSegment plots a straight run of cells between a and b.
func drawSegment(s tcell.Screen, v viewport, a, b physics.Vec2, r rune, style tcell.Style) {
	x0, y0 := v.cell(a)
	x1, y1 := v.cell(b)
	n := max(abs(x1-x0), abs(y1-y0))
	for i := 0; i <= n; i++ {
		t := 0.0
		if n > 0 {
			t = float64(i) / float64(n)
		}
		x := int(math.Round(float64(x0) + t*float64(x1-x0)))
		y := int(math.Round(float64(y0) + t*float64(y1-y0)))
		if v.inside(x, y) {
			s.SetContent(x, y, r, nil, style)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// render draws the table, balls and HUD for one frame.
func (u *ui) render() {
	s := u.screen
	s.Clear()
	sw, sh := s.Size()
	w := u.world()
	v := newViewport(w.Table(), sw, sh)
	felt := tcell.StyleDefault.Background(tcell.ColorDarkGreen)

	// Felt inside the cushion
	for y := 0; y < v.h; y++ {
		for x := 0; x < v.w; x++ {
			if w.Table().Contains(v.point(x, y)) {
				s.SetContent(x, y, ' ', nil, felt)
			}
		}
	}

	rail := tcell.StyleDefault.Foreground(tcell.ColorSaddleBrown)
	for _, seg := range w.Table().Segments {
		if seg.Opening {
			continue
		}
		drawSegment(s, v, seg.A, seg.B, '#', rail)
	}
	for _, p := range w.Table().Pockets {
		x, y := v.cell(p.Centroid)
		if v.inside(x, y) {
			s.SetContent(x, y, '@', nil, tcell.StyleDefault.Foreground(tcell.ColorGray))
		}
	}

	snap := w.Snapshot()
	var cue physics.Vec2
	cueOn := false
	for _, b := range snap.Balls {
		if b.Number == 0 && b.Active {
			cue, cueOn = physics.V(b.X, b.Y), true
		}
	}

	if u.interactive() && cueOn && !snap.Moving && !snap.GameOver {
		dir := u.aim.direction()
		reach := 8 + 30*u.aim.power
		drawSegment(s, v, cue.Add(dir.Mul(2*w.Params().BallRadius)), cue.Add(dir.Mul(reach)), '.', felt.Foreground(tcell.ColorWhite))
		if u.placing {
			x, y := v.cell(u.ghost)
			s.SetContent(x, y, '+', nil, felt.Foreground(tcell.ColorWhite).Bold(true))
		}
	}

	for _, b := range snap.Balls {
		if !b.Active {
			continue
		}
		x, y := v.cell(physics.V(b.X, b.Y))
		if v.inside(x, y) {
			r, st := ballGlyph(b.Number)
			s.SetContent(x, y, r, nil, st)
		}
	}

	u.drawHUD(snap, v.h)
	s.Show()
}

func (u *ui) drawHUD(snap game.Snapshot, top int) {
	s := u.screen
	plain := tcell.StyleDefault
	bold := plain.Bold(true)

	drawText(s, 0, top, bold, u.headline(snap))
	drawText(s, 0, top+1, plain.Foreground(tcell.ColorYellow), u.status)

	help := "arrows aim/power  ,. fine  wasd spin  space shoot  b place  f forfeit  q quit"
	if !u.interactive() {
		help = fmt.Sprintf("replay game %d  frame %d  p pause  +/- speed x%d  q quit", u.gameID, u.frame(), u.speed)
	}
	drawText(s, 0, top+2, plain.Foreground(tcell.ColorGray), help)
}

func (u *ui) headline(snap game.Snapshot) string {
	if snap.GameOver {
		return fmt.Sprintf("Game over: %s wins", u.name(snap.Winner))
	}
	group := rules.GroupOpen
	if snap.Assigned {
		group = snap.Groups[snap.Current-1]
	}
	line := fmt.Sprintf("%s (%s) turn %d  %s", u.name(snap.Current), group, snap.Turn, snap.Phase)
	if snap.OnMoneyBall[snap.Current-1] {
		line += "  on the 8"
	}
	if u.interactive() {
		line += fmt.Sprintf("  power %3.0f%%  spin %+.1f,%+.1f", u.aim.power*100, u.aim.spin.X(), u.aim.spin.Y())
	}
	if snap.TimeLeft > 0 {
		line += fmt.Sprintf("  %s left", time.Duration(snap.TimeLeft*float64(time.Second)).Round(time.Second))
	}
	return line
}

func (u *ui) name(player int) string {
	if player == 2 {
		return u.players[1]
	}
	return u.players[0]
}
