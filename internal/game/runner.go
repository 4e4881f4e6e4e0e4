package game

import (
	"log"
	"time"

	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

// Frame is one simulated frame as streamed to clients while a shot runs.
type Frame struct {
	Type     string                 `msgpack:"type"`
	MatchID  string                 `msgpack:"match_id"`
	Seq      int                    `msgpack:"seq"`
	Balls    []physics.BallSnapshot `msgpack:"balls"`
	Impacts  []physics.Impact       `msgpack:"impacts,omitempty"`
	Pocketed []physics.PocketEvent  `msgpack:"pocketed,omitempty"`
	Moving   bool                   `msgpack:"moving"`
}

// Broadcaster receives what the frame runner produces. The realtime layer
// implements it.
type Broadcaster interface {
	BroadcastFrame(m *Match, f Frame)
	BroadcastTurn(m *Match, res rules.TurnResult)
}

func (gm *GameManager) currentBroadcaster() Broadcaster {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.broadcaster
}

// StartRunner drives the match world at TICK_RATE_HZ until the table comes
// to rest. At most one runner exists per match.
func (gm *GameManager) StartRunner(m *Match) {
	if !m.claimRunner() {
		return
	}
	go gm.run(m)
}

func (gm *GameManager) run(m *Match) {
	hz := gm.config.TickRateHz
	if hz <= 0 {
		hz = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	log.Printf("[RUNNER] Match %s running at %d Hz", m.ID, hz)
	last := time.Now()
	seq := 0
	for {
		select {
		case <-gm.ctx.Done():
			m.releaseRunner()
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			seq++
			if !gm.advance(m, dt, seq) && m.releaseRunnerIfIdle() {
				log.Printf("[RUNNER] Match %s at rest after %d frames", m.ID, seq)
				return
			}
		}
	}
}

// advance runs one frame and hands the results to the broadcaster. It
// reports whether balls are still moving.
func (gm *GameManager) advance(m *Match, dt float64, seq int) bool {
	report := m.Tick(dt)
	b := gm.currentBroadcaster()
	if b != nil {
		b.BroadcastFrame(m, Frame{
			Type:     "frame",
			MatchID:  m.ID,
			Seq:      seq,
			Balls:    m.Snapshot().Balls,
			Impacts:  report.Impacts,
			Pocketed: report.Pocketed,
			Moving:   report.Moving,
		})
	}
	if report.Turn != nil {
		gm.turnCompleted(m, *report.Turn)
	}
	return report.Moving
}

// turnCompleted persists the match, arms the next turn clock and tells
// the clients.
func (gm *GameManager) turnCompleted(m *Match, res rules.TurnResult) {
	m.SaveToRedis()
	if !res.GameOver {
		gm.scheduleTurnDeadline(m)
	}
	if b := gm.currentBroadcaster(); b != nil {
		b.BroadcastTurn(m, res)
	}
}
