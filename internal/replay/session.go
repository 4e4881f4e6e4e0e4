package replay

import (
	"fmt"
	"log"
	"time"

	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

// epoch is where every session clock starts, so turn deadlines land on the
// same frame when a game is played back.
var epoch = time.Unix(0, 0).UTC()

// Session drives a World one fixed frame at a time against a manual clock.
// A game played through a Session can be reproduced exactly from its
// actions: same inputs on the same frames give the same table.
type Session struct {
	world *game.World
	clock *rules.ManualClock
	dt    float64
	step  time.Duration

	frame       int
	sinceAction int

	rec    *Recorder
	onTurn func(frame int, res rules.TurnResult)
}

// NewSession racks a table for su. rec may be nil.
func NewSession(su Setup, rec *Recorder) (*Session, error) {
	if su.FrameDT <= 0 {
		return nil, fmt.Errorf("frame step must be positive, got %v", su.FrameDT)
	}
	table, err := physics.NewTable(su.Table, su.Params)
	if err != nil {
		return nil, err
	}
	clock := rules.NewManualClock(epoch)
	w, err := game.NewWorld(table, su.Params, su.Options, clock)
	if err != nil {
		return nil, err
	}
	return &Session{
		world: w,
		clock: clock,
		dt:    su.FrameDT,
		step:  time.Duration(su.FrameDT * float64(time.Second)),
		rec:   rec,
	}, nil
}

func (s *Session) World() *game.World { return s.world }
func (s *Session) Frame() int         { return s.frame }

// Shoot strikes for player and records the shot.
func (s *Session) Shoot(player int, angle, power float64, spin physics.Vec2) error {
	if err := s.world.Shoot(player, angle, power, spin); err != nil {
		return err
	}
	s.record(Action{Kind: ActionShot, Player: player, Angle: angle, Power: power, SpinX: spin.X(), SpinY: spin.Y()})
	return nil
}

// Place moves the cue ball during ball in hand.
func (s *Session) Place(player int, pos physics.Vec2) error {
	if err := s.world.PlaceCueBall(player, pos); err != nil {
		return err
	}
	s.record(Action{Kind: ActionPlace, Player: player, X: pos.X(), Y: pos.Y()})
	return nil
}

// Forfeit ends the game against player.
func (s *Session) Forfeit(player int) rules.TurnResult {
	s.record(Action{Kind: ActionForfeit, Player: player})
	res := s.world.Forfeit(player)
	s.turnDone(res)
	return res
}

// Tick advances the clock and the table by one frame.
func (s *Session) Tick() game.FrameReport {
	s.clock.Advance(s.step)
	report := s.world.Tick(s.dt)
	s.frame++
	s.sinceAction++
	if report.Turn != nil {
		s.turnDone(*report.Turn)
	}
	return report
}

// apply replays a recorded action without recording it again.
func (s *Session) apply(a Action) error {
	var err error
	switch a.Kind {
	case ActionShot:
		err = s.world.Shoot(a.Player, a.Angle, a.Power, physics.V(a.SpinX, a.SpinY))
	case ActionPlace:
		err = s.world.PlaceCueBall(a.Player, physics.V(a.X, a.Y))
	case ActionForfeit:
		s.turnDone(s.world.Forfeit(a.Player))
	default:
		err = fmt.Errorf("unknown action %q", a.Kind)
	}
	s.sinceAction = 0
	return err
}

func (s *Session) record(a Action) {
	a.AfterFrames = s.sinceAction
	s.sinceAction = 0
	if s.rec == nil {
		return
	}
	if err := s.rec.action(a); err != nil {
		log.Printf("[REPLAY] Failed to record %s for game %d: %v", a.Kind, s.rec.gameID, err)
	}
}

func (s *Session) turnDone(res rules.TurnResult) {
	if s.onTurn != nil {
		s.onTurn(s.frame, res)
	}
	if s.rec == nil {
		return
	}
	if err := s.rec.turn(s.frame, res); err != nil {
		log.Printf("[REPLAY] Failed to record turn %d for game %d: %v", res.TurnNumber, s.rec.gameID, err)
	}
	if res.GameOver {
		if err := s.rec.finish(s.frame, res.Winner); err != nil {
			log.Printf("[REPLAY] Failed to finish game %d: %v", s.rec.gameID, err)
		}
	}
}

// Recorder appends one game's actions and turn results to a Store.
type Recorder struct {
	store  *Store
	gameID int64
	seq    int
}

// Record starts a new recorded game and returns a Session that writes to it.
func (s *Store) Record(su Setup) (*Session, error) {
	sess, err := NewSession(su, nil)
	if err != nil {
		return nil, err
	}
	id, err := s.createGame(su)
	if err != nil {
		return nil, err
	}
	sess.rec = &Recorder{store: s, gameID: id}
	log.Printf("[REPLAY] Recording game %d: %s vs %s", id, su.Player1, su.Player2)
	return sess, nil
}

// GameID is the id of the recorded game, or 0 when not recording.
func (s *Session) GameID() int64 {
	if s.rec == nil {
		return 0
	}
	return s.rec.gameID
}

// Close stamps the frame count on an unfinished recording.
func (s *Session) Close() error {
	if s.rec == nil || s.world.GameOver() {
		return nil
	}
	return s.rec.finish(s.frame, 0)
}

func (r *Recorder) action(a Action) error {
	r.seq++
	a.GameID = r.gameID
	a.Seq = r.seq
	return r.store.insertAction(a)
}

func (r *Recorder) turn(frame int, res rules.TurnResult) error {
	return r.store.insertTurn(r.gameID, frame, res)
}

func (r *Recorder) finish(frame, winner int) error {
	return r.store.finishGame(r.gameID, frame, winner)
}
