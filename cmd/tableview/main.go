// Command tableview plays 8-ball hot-seat in a terminal and plays back
// recorded games.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/replay"
	"github.com/playpool/billiards/internal/rules"
)

const frameDT = 1.0 / 60

var (
	dbFlag     = flag.String("db", "", "replay database (default REPLAY_DB_PATH)")
	replayFlag = flag.Int64("replay", 0, "play back the recorded game with this id")
	listFlag   = flag.Bool("list", false, "list recorded games and exit")
	muteFlag   = flag.Bool("mute", false, "no impact clicks")
	noRecord   = flag.Bool("no-record", false, "do not record this game")
	p1Flag     = flag.String("p1", "Player 1", "name of the breaking player")
	p2Flag     = flag.String("p2", "Player 2", "name of the second player")
	logFlag    = flag.String("log", "tableview.log", "log file; the terminal belongs to the table")
)

type ui struct {
	screen tcell.Screen
	clicks *clicker

	// Exactly one of sess (live play) and player (playback) is set.
	sess   *replay.Session
	player *replay.Player

	players [2]string
	gameID  int64

	aim     aim
	placing bool
	ghost   physics.Vec2
	status  string

	speed  int
	paused bool
	quit   bool
}

func main() {
	flag.Parse()
	cfg := config.Load()

	path := *dbFlag
	if path == "" {
		path = cfg.ReplayDBPath
	}
	store, err := replay.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open replays: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *listFlag {
		if err := listGames(store); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if f, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	u := &ui{aim: newAim(), speed: 1}
	if *replayFlag != 0 {
		err = u.loadReplay(store, *replayFlag)
	} else {
		err = u.newGame(store, cfg)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	u.clicks = newClicker(u.world().Params())
	if !*muteFlag {
		if err := u.clicks.init(); err != nil {
			// Non-fatal, the table works without sound
			log.Printf("[AUDIO] init failed: %v", err)
		}
	}
	defer u.clicks.close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		os.Exit(1)
	}
	u.screen = screen
	defer func() {
		screen.Fini()
		if u.sess != nil {
			if err := u.sess.Close(); err != nil {
				log.Printf("[REPLAY] close: %v", err)
			}
			if id := u.sess.GameID(); id != 0 {
				fmt.Printf("recorded as game %d (tableview -replay %d)\n", id, id)
			}
		}
	}()

	u.run()
}

func listGames(store *replay.Store) error {
	games, err := store.Games(50)
	if err != nil {
		return err
	}
	for _, g := range games {
		result := "unfinished"
		if g.Winner != 0 {
			name := g.Player1
			if g.Winner == 2 {
				name = g.Player2
			}
			result = name + " won"
		}
		fmt.Printf("%4d  %s  %s vs %s  %s  %d frames\n",
			g.ID, g.CreatedAt.Local().Format("2006-01-02 15:04"), g.Player1, g.Player2, result, g.Frames)
	}
	return nil
}

func (u *ui) newGame(store *replay.Store, cfg *config.Config) error {
	params, err := cfg.PhysicsParams()
	if err != nil {
		return err
	}
	spec, err := cfg.TableSpec()
	if err != nil {
		return err
	}
	su := replay.Setup{
		Player1: *p1Flag,
		Player2: *p2Flag,
		Table:   spec,
		Params:  params,
		Options: cfg.RuleOptions(),
		FrameDT: frameDT,
	}
	if *noRecord {
		u.sess, err = replay.NewSession(su, nil)
	} else {
		u.sess, err = store.Record(su)
	}
	if err != nil {
		return err
	}
	u.players = [2]string{su.Player1, su.Player2}
	u.gameID = u.sess.GameID()
	u.status = fmt.Sprintf("%s to break", su.Player1)
	return nil
}

func (u *ui) loadReplay(store *replay.Store, id int64) error {
	g, err := store.Game(id)
	if err != nil {
		return err
	}
	if u.player, err = store.Load(id); err != nil {
		return err
	}
	u.players = [2]string{g.Player1, g.Player2}
	u.gameID = id
	u.status = fmt.Sprintf("%s vs %s", g.Player1, g.Player2)
	return nil
}

func (u *ui) interactive() bool { return u.sess != nil }

func (u *ui) world() *game.World {
	if u.sess != nil {
		return u.sess.World()
	}
	return u.player.World()
}

func (u *ui) frame() int {
	if u.sess != nil {
		return u.sess.Frame()
	}
	return u.player.Frame()
}

func (u *ui) run() {
	ticker := time.NewTicker(time.Duration(frameDT * float64(time.Second)))
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	for !u.quit {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				u.handleKey(ev)
			case *tcell.EventResize:
				u.screen.Sync()
			}
		case <-ticker.C:
			u.step()
			u.render()
		}
	}
}

// step advances the simulation by one (or, in fast playback, several) frames.
func (u *ui) step() {
	if u.sess != nil {
		u.report(u.sess.Tick())
		return
	}
	if u.paused {
		return
	}
	for i := 0; i < u.speed && !u.player.Done(); i++ {
		report, err := u.player.Step()
		if err != nil {
			u.status = err.Error()
			u.paused = true
			return
		}
		u.report(report)
	}
	if u.player.Done() && !u.paused {
		u.status = fmt.Sprintf("Replay finished after %d turns", len(u.player.Turns()))
		u.paused = true
	}
}

func (u *ui) report(r game.FrameReport) {
	u.clicks.play(r.Impacts)
	if r.Turn != nil {
		u.status = turnStatus(*r.Turn, u.name)
		u.placing = false
	}
}

func turnStatus(res rules.TurnResult, name func(int) string) string {
	switch {
	case res.GameOver:
		if res.Message != "" {
			return fmt.Sprintf("%s. %s wins", res.Message, name(res.Winner))
		}
		return fmt.Sprintf("%s wins", name(res.Winner))
	case res.FoulCommitted:
		return fmt.Sprintf("Foul by %s: %s. %s has ball in hand", name(res.Shooter), res.Message, name(res.NextPlayer))
	case res.NextPlayer == res.Shooter:
		return fmt.Sprintf("%s potted %d, shoots again", name(res.Shooter), len(res.Pocketed))
	default:
		return fmt.Sprintf("%s to shoot", name(res.NextPlayer))
	}
}

func (u *ui) handleKey(ev *tcell.EventKey) {
	if ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' || ev.Key() == tcell.KeyEscape && !u.placing {
		u.quit = true
		return
	}
	if u.sess == nil {
		u.playbackKey(ev)
		return
	}
	if u.placing {
		u.placeKey(ev)
		return
	}

	w := u.sess.World()
	switch ev.Key() {
	case tcell.KeyLeft:
		u.aim.rotate(-aimStep)
	case tcell.KeyRight:
		u.aim.rotate(aimStep)
	case tcell.KeyUp:
		u.aim.adjustPower(powerStep)
	case tcell.KeyDown:
		u.aim.adjustPower(-powerStep)
	}

	switch ev.Rune() {
	case ',':
		u.aim.rotate(-aimFineStep)
	case '.':
		u.aim.rotate(aimFineStep)
	case 'w':
		u.aim.adjustSpin(0, spinStep)
	case 's':
		u.aim.adjustSpin(0, -spinStep)
	case 'a':
		u.aim.adjustSpin(-spinStep, 0)
	case 'd':
		u.aim.adjustSpin(spinStep, 0)
	case 'x':
		u.aim.spin = physics.Vec2{}
	case ' ':
		if err := u.sess.Shoot(w.Current(), u.aim.angle, u.aim.power, u.aim.spin); err != nil {
			u.status = err.Error()
		}
	case 'b':
		if w.Phase() != rules.PhaseBallInHand {
			u.status = "No ball in hand"
			return
		}
		u.placing = true
		u.ghost = cuePosition(w)
		u.status = "Move the cue ball with the arrows, enter to place, esc to cancel"
	case 'f':
		if w.GameOver() {
			return
		}
		res := u.sess.Forfeit(w.Current())
		u.status = turnStatus(res, u.name)
	}
}

func (u *ui) placeKey(ev *tcell.EventKey) {
	w := u.sess.World()
	d := placeStepRad * w.Params().BallRadius
	switch ev.Key() {
	case tcell.KeyLeft:
		u.ghost = u.ghost.Add(physics.V(-d, 0))
	case tcell.KeyRight:
		u.ghost = u.ghost.Add(physics.V(d, 0))
	case tcell.KeyUp:
		u.ghost = u.ghost.Add(physics.V(0, -d))
	case tcell.KeyDown:
		u.ghost = u.ghost.Add(physics.V(0, d))
	case tcell.KeyEscape:
		u.placing = false
		u.status = ""
	case tcell.KeyEnter:
		err := u.sess.Place(w.Current(), u.ghost)
		switch {
		case errors.Is(err, game.ErrBadPlacement):
			u.status = err.Error()
		case err != nil:
			u.status = err.Error()
			u.placing = false
		default:
			u.placing = false
			u.status = "Cue ball placed"
		}
	}
}

func (u *ui) playbackKey(ev *tcell.EventKey) {
	switch ev.Rune() {
	case 'p', ' ':
		if !u.player.Done() {
			u.paused = !u.paused
		}
	case '+', '=':
		u.speed = min(u.speed*2, 16)
	case '-':
		u.speed = max(u.speed/2, 1)
	}
}

func cuePosition(w *game.World) physics.Vec2 {
	for _, b := range w.Snapshot().Balls {
		if b.Number == 0 {
			return physics.V(b.X, b.Y)
		}
	}
	return w.Table().HeadSpot
}
