package main

import (
	"math"
	"strings"
	"testing"

	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

func TestViewportCorners(t *testing.T) {
	table, err := physics.NewStandardTable(physics.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	v := newViewport(table, 80, 24)

	if x, y := v.cell(table.Min); x != 0 || y != 0 {
		t.Errorf("min corner at (%d,%d), want (0,0)", x, y)
	}
	if x, y := v.cell(table.Max); x != 79 || y != 24-hudRows-1 {
		t.Errorf("max corner at (%d,%d), want (79,%d)", x, y, 24-hudRows-1)
	}

	x, y := v.cell(table.FootSpot)
	back := v.point(x, y)
	if back.Sub(table.FootSpot).Len() > 2 {
		t.Errorf("foot spot round trip drifted to %v", back)
	}
}

func TestBallGlyphs(t *testing.T) {
	tests := []struct {
		n    int
		want rune
	}{
		{0, 'o'},
		{1, '1'},
		{8, '8'},
		{9, '9'},
		{10, 'A'},
		{15, 'F'},
	}
	for _, tt := range tests {
		if r, _ := ballGlyph(tt.n); r != tt.want {
			t.Errorf("ballGlyph(%d) = %q, want %q", tt.n, r, tt.want)
		}
	}
}

func TestAimLimits(t *testing.T) {
	a := newAim()
	for i := 0; i < 40; i++ {
		a.adjustPower(powerStep)
		a.adjustSpin(spinStep, -spinStep)
	}
	if a.power != 1 {
		t.Errorf("power = %v, want capped at 1", a.power)
	}
	if a.spin.X() != 1 || a.spin.Y() != -1 {
		t.Errorf("spin = %v, want (1,-1)", a.spin)
	}
	for i := 0; i < 40; i++ {
		a.adjustPower(-powerStep)
	}
	if a.power <= 0 {
		t.Errorf("power dropped to %v; a shot needs positive power", a.power)
	}

	a.rotate(-aimStep)
	if a.angle < 0 || a.angle >= 2*math.Pi {
		t.Errorf("angle %v not normalised", a.angle)
	}
}

func TestClickVolume(t *testing.T) {
	if v := clickVolume(0, 120); v != 0 {
		t.Errorf("silent impact gave volume %v", v)
	}
	if soft, hard := clickVolume(10, 120), clickVolume(100, 120); soft >= hard {
		t.Errorf("soft %v should be quieter than hard %v", soft, hard)
	}
	if v := clickVolume(500, 120); v != 0.5 {
		t.Errorf("over-speed impact = %v, want capped 0.5", v)
	}
}

func TestTurnStatus(t *testing.T) {
	name := func(p int) string { return []string{"", "ann", "ben"}[p] }

	foul := rules.TurnResult{Shooter: 1, NextPlayer: 2, FoulCommitted: true, Reason: rules.FoulScratch, Message: "Scratch"}
	if got := turnStatus(foul, name); !strings.Contains(got, "ben has ball in hand") {
		t.Errorf("foul status = %q", got)
	}

	again := rules.TurnResult{Shooter: 2, NextPlayer: 2, Pocketed: []int{3}}
	if got := turnStatus(again, name); !strings.Contains(got, "shoots again") {
		t.Errorf("continue status = %q", got)
	}

	over := rules.TurnResult{GameOver: true, Winner: 1}
	if got := turnStatus(over, name); got != "ann wins" {
		t.Errorf("game over status = %q", got)
	}
}
