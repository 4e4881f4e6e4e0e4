package game

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

const frame = 1.0 / 60

func newTestWorld(t *testing.T, opts rules.Options, clock rules.Clock) *World {
	t.Helper()
	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	w, err := NewWorld(table, p, opts, clock)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// tickUntilTurn runs frames until a turn result appears, counting how many appear.
func tickUntilTurn(t *testing.T, w *World, maxFrames int) (*rules.TurnResult, int) {
	t.Helper()
	var first *rules.TurnResult
	count := 0
	for i := 0; i < maxFrames; i++ {
		r := w.Tick(frame)
		if r.Turn != nil {
			count++
			if first == nil {
				first = r.Turn
			}
		}
	}
	return first, count
}

// setupScratch puts the cue ball on a line into the top-right pocket.
func setupScratch(t *testing.T, w *World) {
	t.Helper()
	err := w.engine.SetBalls([]physics.Ball{
		physics.NewBall(physics.CueBall, physics.V(40, -15)),
		physics.NewBall(1, physics.V(-20, 10)),
		physics.NewBall(9, physics.V(-20, -10)),
		physics.NewBall(physics.MoneyBall, physics.V(0, 0)),
	})
	if err != nil {
		t.Fatalf("set balls: %v", err)
	}
}

func TestBreakProducesOneTurnResult(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)
	if err := w.Shoot(1, 0, 1, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	res, count := tickUntilTurn(t, w, 60*40)
	if count != 1 {
		t.Fatalf("turn results = %d, want exactly 1", count)
	}
	if res.Shooter != 1 || !res.Break || res.FirstHit != 1 {
		t.Errorf("result = %+v, want player 1 breaking onto the apex ball", res)
	}
	if w.Moving() {
		t.Errorf("world still moving after evaluation")
	}
	for _, b := range w.Snapshot().Balls {
		if math.Hypot(b.VX, b.VY) >= w.Params().RestSpeed {
			t.Errorf("ball %d still has speed after settling", b.Number)
		}
	}
}

func TestShootGuards(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)

	if err := w.Shoot(2, 0, 0.5, physics.V(0, 0)); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("player 2 shooting first: err = %v", err)
	}
	if err := w.Shoot(1, 0, 2, physics.V(0, 0)); !errors.Is(err, ErrInvalidShot) {
		t.Errorf("overpowered shot: err = %v", err)
	}
	if w.Phase() != rules.PhaseAiming {
		t.Fatalf("rejected shot changed phase to %v", w.Phase())
	}
	if err := w.Shoot(1, 0, 0.5, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	if err := w.Shoot(1, 0, 0.5, physics.V(0, 0)); !errors.Is(err, ErrShotInProgress) {
		t.Errorf("second shot mid-roll: err = %v", err)
	}
}

func TestScratchGivesBallInHandBehindHeadString(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)
	setupScratch(t, w)

	if err := w.Shoot(1, -math.Pi/4, 40.0/w.Params().MaxShotSpeed, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	res, _ := tickUntilTurn(t, w, 60*10)
	if res == nil {
		t.Fatalf("no turn result")
	}
	if !res.FoulCommitted || res.Reason != rules.FoulScratch || !res.BallInHand || res.NextPlayer != 2 {
		t.Fatalf("result = %+v, want scratch with ball in hand to 2", res)
	}

	cue, _ := w.engine.Ball(physics.CueBall)
	if !cue.Active {
		t.Fatalf("cue ball was not returned to the table")
	}

	if err := w.PlaceCueBall(1, physics.V(-40, 10)); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("offender placing: err = %v", err)
	}
	if err := w.PlaceCueBall(2, physics.V(10, 10)); !errors.Is(err, ErrBadPlacement) {
		t.Errorf("placement past the head string after a break scratch: err = %v", err)
	}
	if err := w.PlaceCueBall(2, physics.V(-20, 10)); !errors.Is(err, ErrBadPlacement) {
		t.Errorf("placement on top of ball 1: err = %v", err)
	}
	if err := w.PlaceCueBall(2, physics.V(-40, 10)); err != nil {
		t.Errorf("legal placement rejected: %v", err)
	}
	if err := w.Shoot(2, 0, 0.3, physics.V(0, 0)); err != nil {
		t.Errorf("shot after placement: %v", err)
	}
}

func TestPlaceCueBallNeedsBallInHand(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)
	if err := w.PlaceCueBall(1, physics.V(-40, 0)); !errors.Is(err, ErrNotBallInHand) {
		t.Errorf("err = %v, want ErrNotBallInHand", err)
	}
}

func TestTimerExpiryHaltsShot(t *testing.T) {
	clock := rules.NewManualClock(time.Unix(0, 0))
	w := newTestWorld(t, rules.Options{TurnTimeLimit: 10 * time.Second}, clock)

	if err := w.Shoot(1, 0, 1, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	w.Tick(frame)
	clock.Advance(11 * time.Second)
	r := w.Tick(frame)

	if r.Turn == nil {
		t.Fatalf("no turn result on expiry")
	}
	if r.Turn.Reason != rules.FoulTimeout || r.Turn.NextPlayer != 2 || !r.Turn.BallInHand {
		t.Errorf("result = %+v, want timeout to player 2", r.Turn)
	}
	if w.Moving() {
		t.Errorf("balls still rolling after timeout")
	}
	for _, b := range w.Snapshot().Balls {
		if b.VX != 0 || b.VY != 0 {
			t.Errorf("ball %d not halted", b.Number)
		}
	}

	// The next frames must not evaluate the same turn again.
	if _, count := tickUntilTurn(t, w, 120); count != 0 {
		t.Errorf("turn evaluated again %d times", count)
	}
}

func TestTimerExpiryWhileAiming(t *testing.T) {
	clock := rules.NewManualClock(time.Unix(0, 0))
	w := newTestWorld(t, rules.Options{TurnTimeLimit: 5 * time.Second}, clock)

	clock.Advance(6 * time.Second)
	res, ok := w.TimerExpired()
	if !ok || res.Reason != rules.FoulTimeout {
		t.Fatalf("result = %+v ok=%v", res, ok)
	}
	if w.Current() != 2 || w.Phase() != rules.PhaseBallInHand {
		t.Errorf("current %d phase %v, want 2 with ball in hand", w.Current(), w.Phase())
	}
}

func TestNewWorldRejectsBadTable(t *testing.T) {
	_, err := NewWorld(nil, physics.DefaultParams(), rules.Options{}, nil)
	if !errors.Is(err, physics.ErrInvalidTable) {
		t.Errorf("err = %v, want ErrInvalidTable", err)
	}
}

func TestWorldStateRoundTrip(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)
	if err := w.Shoot(1, 0.1, 0.8, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	tickUntilTurn(t, w, 60*40)

	state := w.State()
	r, err := RestoreWorld(state, w.Table(), w.Params(), rules.Options{}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	a, b := w.Snapshot(), r.Snapshot()
	if a.Current != b.Current || a.Phase != b.Phase || a.Groups != b.Groups {
		t.Errorf("rules differ: %+v vs %+v", a, b)
	}
	for i := range a.Balls {
		if a.Balls[i] != b.Balls[i] {
			t.Errorf("ball %d differs: %+v vs %+v", a.Balls[i].Number, a.Balls[i], b.Balls[i])
		}
	}
}

func TestRestoreMidShotResumesTheShot(t *testing.T) {
	w := newTestWorld(t, rules.Options{}, nil)
	if err := w.Shoot(1, 0, 1, physics.V(0, 0)); err != nil {
		t.Fatalf("shoot: %v", err)
	}
	for i := 0; i < 600 && w.engine.FirstHit() < 0; i++ {
		if r := w.Tick(frame); r.Turn != nil {
			t.Fatalf("turn ended before the cue reached the rack")
		}
	}
	if w.engine.FirstHit() < 0 || !w.Moving() {
		t.Fatalf("cue never struck the rack")
	}

	data, err := json.Marshal(w.State())
	if err != nil {
		t.Fatal(err)
	}
	var state WorldState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	r, err := RestoreWorld(state, w.Table(), w.Params(), rules.Options{}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Phase() != rules.PhaseShotInProgress || !r.Moving() {
		t.Fatalf("restored phase %v moving %v, want the shot still running", r.Phase(), r.Moving())
	}
	if r.engine.FirstHit() != w.engine.FirstHit() {
		t.Errorf("first hit %d, want %d", r.engine.FirstHit(), w.engine.FirstHit())
	}

	live, n := tickUntilTurn(t, w, 60*40)
	restored, m := tickUntilTurn(t, r, 60*40)
	if n != 1 || m != 1 {
		t.Fatalf("turn results: live %d, restored %d; want one each", n, m)
	}
	if restored.Reason == rules.FoulNoContact {
		t.Errorf("restored break judged as no contact: %+v", restored)
	}
	if !reflect.DeepEqual(live, restored) {
		t.Errorf("restored result %+v, live %+v", restored, live)
	}
	if r.Current() != w.Current() || r.Phase() != w.Phase() {
		t.Errorf("restored current %d phase %v, live %d %v", r.Current(), r.Phase(), w.Current(), w.Phase())
	}
}
