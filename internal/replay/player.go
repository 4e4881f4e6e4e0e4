package replay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/rules"
)

// ErrDiverged means playback no longer matches what was recorded.
var ErrDiverged = errors.New("replay: playback diverged from recording")

// tailFrames is how long playback may run past the last recorded frame
// waiting for the table to settle.
const tailFrames = 3600

// Player re-simulates a recorded game frame by frame and checks every turn
// against the recorded result.
type Player struct {
	session   *Session
	actions   []Action
	next      int
	expected  map[int]Turn
	lastFrame int
	turns     []rules.TurnResult
	err       error
}

// Load prepares game id for playback.
func (s *Store) Load(id int64) (*Player, error) {
	g, err := s.Game(id)
	if err != nil {
		return nil, err
	}
	su, err := g.Setup()
	if err != nil {
		return nil, err
	}
	actions, err := s.Actions(id)
	if err != nil {
		return nil, err
	}
	turns, err := s.Turns(id)
	if err != nil {
		return nil, err
	}

	sess, err := NewSession(su, nil)
	if err != nil {
		return nil, err
	}
	p := &Player{
		session:   sess,
		actions:   actions,
		expected:  make(map[int]Turn, len(turns)),
		lastFrame: g.Frames,
	}
	for _, t := range turns {
		p.expected[t.TurnNumber] = t
		if t.Frame > p.lastFrame {
			p.lastFrame = t.Frame
		}
	}
	sess.onTurn = p.check
	return p, nil
}

func (p *Player) World() *game.World { return p.session.World() }
func (p *Player) Frame() int         { return p.session.Frame() }

// Turns returns the turn results produced so far.
func (p *Player) Turns() []rules.TurnResult { return p.turns }

// Done reports whether every recorded input has been replayed and the table
// has come to rest after the last recorded frame.
func (p *Player) Done() bool {
	return p.err != nil || (p.next >= len(p.actions) &&
		p.session.Frame() >= p.lastFrame &&
		!p.session.World().Moving())
}

// Step applies the actions due on this frame, then ticks once.
func (p *Player) Step() (game.FrameReport, error) {
	if p.err != nil {
		return game.FrameReport{}, p.err
	}
	for p.next < len(p.actions) && p.actions[p.next].AfterFrames <= p.session.sinceAction {
		a := p.actions[p.next]
		p.next++
		if err := p.session.apply(a); err != nil {
			p.err = fmt.Errorf("%w: action %d (%s): %v", ErrDiverged, a.Seq, a.Kind, err)
			return game.FrameReport{}, p.err
		}
		if p.err != nil {
			return game.FrameReport{}, p.err
		}
	}
	if p.session.Frame() > p.lastFrame+tailFrames {
		p.err = fmt.Errorf("%w: still running at frame %d", ErrDiverged, p.session.Frame())
		return game.FrameReport{}, p.err
	}
	report := p.session.Tick()
	return report, p.err
}

// Run plays the whole game and returns its turn results.
func (p *Player) Run() ([]rules.TurnResult, error) {
	for !p.Done() {
		if _, err := p.Step(); err != nil {
			return p.turns, err
		}
	}
	if p.err != nil {
		return p.turns, p.err
	}
	if len(p.turns) != len(p.expected) {
		return p.turns, fmt.Errorf("%w: %d turns played, %d recorded", ErrDiverged, len(p.turns), len(p.expected))
	}
	return p.turns, nil
}

func (p *Player) check(frame int, res rules.TurnResult) {
	p.turns = append(p.turns, res)
	if p.err != nil {
		return
	}
	want, ok := p.expected[res.TurnNumber]
	if !ok {
		p.err = fmt.Errorf("%w: unexpected turn %d at frame %d", ErrDiverged, res.TurnNumber, frame)
		return
	}
	got, err := json.Marshal(res)
	if err != nil {
		p.err = err
		return
	}
	if want.Frame != frame || string(got) != want.Result {
		p.err = fmt.Errorf("%w: turn %d at frame %d gave %s, recorded %s at frame %d",
			ErrDiverged, res.TurnNumber, frame, got, want.Result, want.Frame)
	}
}
