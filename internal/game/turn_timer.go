package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/playpool/billiards/internal/rules"
	"github.com/redis/go-redis/v9"
)

const (
	turnDeadlinesKey   = "turn_deadlines"
	MatchEventsChannel = "match_events"
)

// Event types published on MatchEventsChannel.
const (
	EventTurnTimeout    = "turn_timeout"
	EventPlayerForfeit  = "player_forfeit"
	EventMatchCancelled = "match_cancelled"
)

// MatchEvent is a notice about a match that happened outside a player's
// own request: timers, disconnects, expiry.
type MatchEvent struct {
	Type       string            `json:"type"`
	MatchToken string            `json:"match_token"`
	MatchID    string            `json:"match_id"`
	Player     string            `json:"player,omitempty"`
	Message    string            `json:"message,omitempty"`
	Turn       *rules.TurnResult `json:"turn,omitempty"`
}

// EventSink receives match events directly when there is no Redis to
// publish through.
type EventSink interface {
	HandleMatchEvent(ev MatchEvent)
}

// publishEvent sends ev on the match_events channel, or straight to the
// broadcaster when running without Redis.
func (gm *GameManager) publishEvent(ev MatchEvent) {
	if gm.rdb == nil {
		if sink, ok := gm.currentBroadcaster().(EventSink); ok {
			sink.HandleMatchEvent(ev)
		}
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[TIMER] marshal %s event failed: %v", ev.Type, err)
		return
	}
	if n, err := gm.rdb.Publish(context.Background(), MatchEventsChannel, b).Result(); err != nil {
		log.Printf("[TIMER] publish %s failed: match=%s err=%v", ev.Type, ev.MatchToken, err)
	} else {
		log.Printf("[TIMER] published %s: match=%s subscribers=%d", ev.Type, ev.MatchToken, n)
	}
}

// timerMember encodes a match token and turn number as m:<token>:t:<turn>
func timerMember(token string, turn int) string {
	return "m:" + token + ":t:" + strconv.Itoa(turn)
}

// parseMember expects member format m:<matchToken>:t:<turn>
func parseMember(m string) (string, int, bool) {
	parts := strings.Split(m, ":")
	if len(parts) != 4 || parts[0] != "m" || parts[2] != "t" || parts[1] == "" {
		return "", 0, false
	}
	turn, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, false
	}
	return parts[1], turn, true
}

// scheduleTurnDeadline records when the current turn runs out.
func (gm *GameManager) scheduleTurnDeadline(m *Match) {
	if gm.rdb == nil {
		return
	}
	deadline := m.Deadline()
	if deadline.IsZero() {
		return
	}
	// Round up so the worker never fires before the rules clock is due.
	score := float64(deadline.Add(time.Second - 1).Unix())
	member := timerMember(m.Token, m.Turn())
	if err := gm.rdb.ZAdd(context.Background(), turnDeadlinesKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		log.Printf("[TIMER] Failed to schedule deadline for %s: %v", member, err)
	}
}

// StartTurnTimerWorker polls for turns whose clock ran out.
func (gm *GameManager) StartTurnTimerWorker(ctx context.Context) {
	interval := time.Duration(gm.config.TimerPollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	log.Println("[TIMER] Turn timer worker started")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[TIMER] Turn timer worker stopping")
				return
			case <-ticker.C:
				if gm.rdb != nil {
					gm.processDueDeadlines(ctx, time.Now())
				} else {
					gm.expireLocalTurns()
				}
			}
		}
	}()
}

func (gm *GameManager) processDueDeadlines(ctx context.Context, now time.Time) {
	members, err := gm.rdb.ZRangeByScore(ctx, turnDeadlinesKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now.Unix())}).Result()
	if err != nil {
		log.Printf("[TIMER] Failed to fetch due deadlines: %v", err)
		return
	}
	for _, member := range members {
		// Attempt to remove (race-safe)
		if removed, _ := gm.rdb.ZRem(ctx, turnDeadlinesKey, member).Result(); removed == 0 {
			continue
		}
		token, turn, ok := parseMember(member)
		if !ok {
			log.Printf("[TIMER] Dropping malformed member %q", member)
			continue
		}
		m, err := gm.GetMatchByToken(token)
		if err != nil {
			continue
		}
		if !m.IsInProgress() || m.Turn() != turn {
			log.Printf("[TIMER] skipping stale deadline for match %s turn %d (now turn %d)", token, turn, m.Turn())
			continue
		}
		if !gm.expireTurn(m) {
			gm.scheduleTurnDeadline(m)
		}
	}
}

func (gm *GameManager) expireLocalTurns() {
	for _, m := range gm.allMatches() {
		if m.IsInProgress() {
			gm.expireTurn(m)
		}
	}
}

// expireTurn applies a timeout if the match clock is due.
func (gm *GameManager) expireTurn(m *Match) bool {
	res, ok := m.ExpireTurn()
	if !ok {
		return false
	}
	gm.turnCompleted(m, res)
	player := ""
	if p := m.playerAt(res.Shooter); p != nil {
		player = p.ID
	}
	gm.publishEvent(MatchEvent{
		Type:       EventTurnTimeout,
		MatchToken: m.Token,
		MatchID:    m.ID,
		Player:     player,
		Message:    res.Message,
		Turn:       &res,
	})
	return true
}
