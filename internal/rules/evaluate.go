package rules

import (
	"time"

	"github.com/playpool/billiards/internal/physics"
)

// Evaluate judges the shot that just settled. It runs once per turn: a
// call while an evaluation is in flight, or outside the Review phase,
// returns ok == false and changes nothing.
func (g *Game) Evaluate(t Table) (res TurnResult, ok bool) {
	if g.evaluating || g.phase != PhaseReview || g.gameOver {
		return TurnResult{}, false
	}
	g.evaluating = true

	shooter := g.current
	opponent := other(shooter)
	f := g.facts

	res = TurnResult{
		TurnNumber: g.turn,
		Shooter:    shooter,
		Pocketed:   append([]int(nil), f.Pocketed...),
		FirstHit:   f.FirstHit,
		Break:      g.breakShot,
	}

	// Assignment comes first so the shot that assigns groups is judged by them.
	if !g.assigned && !f.Scratch {
		for _, n := range f.Pocketed {
			if grp := GroupOf(n); grp != GroupOpen {
				g.groups[shooter-1] = grp
				g.groups[opponent-1] = grp.Complement()
				g.assigned = true
				res.GroupAssigned = true
				break
			}
		}
	}

	own := g.groups[shooter-1]
	pottedOwn := 0
	moneyPotted := false
	for _, n := range f.Pocketed {
		if n == physics.MoneyBall {
			moneyPotted = true
		} else if g.assigned && GroupOf(n) == own {
			pottedOwn++
		}
	}
	clearedBefore := g.assigned && !res.GroupAssigned && t.RemainingInGroup(own)+pottedOwn == 0

	reason := FoulNone
	switch {
	case f.Scratch:
		reason = FoulScratch
	case f.TimedOut:
		reason = FoulTimeout
	case f.FirstHit < 0:
		reason = FoulNoContact
	case !g.legalFirstHit(f.FirstHit, own, clearedBefore):
		reason = FoulWrongFirstContact
	case g.opts.RequireRailAfterContact && len(f.Pocketed) == 0 && !f.RailAfterContact:
		reason = FoulNoRail
	}
	if reason == FoulScratch {
		t.RespotCue()
	}
	res.FoulCommitted = reason != FoulNone
	res.Reason = reason
	res.Message = reason.Message()

	next := opponent
	switch {
	case moneyPotted:
		res.GameOver = true
		if clearedBefore && reason == FoulNone {
			res.Winner = shooter
		} else {
			res.Winner = opponent
		}
		next = 0
	case res.FoulCommitted:
		res.BallInHand = true
		res.BehindHeadString = reason == FoulScratch && g.breakShot
	case pottedOwn > 0:
		next = shooter
	}
	res.NextPlayer = next
	res.Groups = g.groups

	switch {
	case res.GameOver:
		g.gameOver = true
		g.winner = res.Winner
		g.phase = PhaseGameOver
		g.deadline = time.Time{}
	case res.BallInHand:
		g.phase = PhaseBallInHand
		g.current = next
	default:
		g.phase = PhaseAiming
		g.current = next
	}
	g.kitchenOnly = res.BehindHeadString

	g.facts = freshFacts()
	g.turn++
	g.breakShot = false
	g.evaluating = false
	if !g.gameOver {
		g.restartTimer()
	}
	return res, true
}

// legalFirstHit reports whether striking number first is allowed for a
// shooter owning group own.
func (g *Game) legalFirstHit(number int, own Group, cleared bool) bool {
	if number == physics.MoneyBall {
		return cleared
	}
	if !g.assigned {
		return GroupOf(number) != GroupOpen
	}
	return GroupOf(number) == own
}
