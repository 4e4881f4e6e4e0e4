package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/redis/go-redis/v9"
)

var rdbClient *redis.Client
var wsConfig *config.Config

// Configure hands the realtime layer its Redis client and config.
func Configure(r *redis.Client, cfg *config.Config) {
	rdbClient = r
	wsConfig = cfg
}

// StartMatchEventSubscriber relays match_events published by any server
// instance to the clients connected here.
func StartMatchEventSubscriber(ctx context.Context) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; match event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, game.MatchEventsChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] %s subscriber started", game.MatchEventsChannel)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev game.MatchEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[WS] invalid event payload: %v", err)
					continue
				}
				GameHub.HandleMatchEvent(ev)
			}
		}
	}()
}

// HandleMatchEvent fans an event out to the players of its match.
func (h *Hub) HandleMatchEvent(ev game.MatchEvent) {
	if h.roomSize(ev.MatchID) == 0 {
		log.Printf("[WS] no room for match %s; %s not delivered", ev.MatchID, ev.Type)
		return
	}
	log.Printf("[WS] event received: type=%s match=%s", ev.Type, ev.MatchID)

	switch ev.Type {
	case game.EventTurnTimeout:
		h.BroadcastToMatch(ev.MatchID, map[string]interface{}{
			"type":    "turn_timeout",
			"player":  ev.Player,
			"message": ev.Message,
		})

	case game.EventPlayerForfeit:
		if m, err := game.Manager.GetMatchByToken(ev.MatchToken); err == nil {
			h.broadcastMatchState(m, "game_state")
		}
		h.BroadcastToMatch(ev.MatchID, map[string]interface{}{
			"type":    "game_over",
			"player":  ev.Player,
			"message": ev.Message,
		})

	case game.EventMatchCancelled:
		h.BroadcastToMatch(ev.MatchID, map[string]interface{}{
			"type":    "match_cancelled",
			"message": ev.Message,
		})

	default:
		log.Printf("[WS] unknown event type %q", ev.Type)
	}
}
