package ws

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
	"github.com/vmihailenco/msgpack/v5"
)

func testClient(playerID, matchID string, buf int) *Client {
	return &Client{playerID: playerID, matchID: matchID, matchToken: "tok", send: make(chan outbound, buf)}
}

func testMatch(id string) *game.Match {
	return game.NewMatch(id, "tok", &game.MatchPlayer{ID: "a"}, &game.MatchPlayer{ID: "b"}, nil, time.Minute)
}

func TestBroadcastFrameIsBinaryMsgpack(t *testing.T) {
	h := NewHub()
	a, b, other := testClient("a", "m1", 4), testClient("b", "m1", 4), testClient("c", "m2", 4)
	h.add(a)
	h.add(b)
	h.add(other)

	f := game.Frame{
		Type:    "frame",
		MatchID: "m1",
		Seq:     3,
		Balls:   []physics.BallSnapshot{{Number: 0, X: 1.5, Y: -2, Active: true}},
		Impacts: []physics.Impact{{Kind: physics.ImpactCushion, Ball: 0, Other: 2, Magnitude: 4}},
		Moving:  true,
	}
	h.BroadcastFrame(testMatch("m1"), f)

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.kind != websocket.BinaryMessage {
				t.Fatalf("kind = %d, want binary", msg.kind)
			}
			var got game.Frame
			if err := msgpack.Unmarshal(msg.data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Seq != 3 || len(got.Balls) != 1 || got.Balls[0].X != 1.5 || len(got.Impacts) != 1 {
				t.Errorf("frame = %+v", got)
			}
		default:
			t.Errorf("player %s got no frame", c.playerID)
		}
	}
	if len(other.send) != 0 {
		t.Errorf("frame leaked to another match")
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := testClient("a", "m1", 1)
	h.add(c)

	done := make(chan struct{})
	go func() {
		h.BroadcastToMatch("m1", map[string]string{"type": "one"})
		h.BroadcastToMatch("m1", map[string]string{"type": "two"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full buffer")
	}
	if len(c.send) != 1 {
		t.Errorf("buffered = %d, want 1", len(c.send))
	}
}

func TestReplacedClientIsNotRemoved(t *testing.T) {
	h := NewHub()
	first := testClient("a", "m1", 1)
	second := testClient("a", "m1", 1)
	h.add(first)
	if old := h.add(second); old != first {
		t.Fatalf("add did not return the replaced client")
	}
	if h.remove(first) {
		t.Errorf("stale client removed the current connection")
	}
	if !h.remove(second) || h.roomSize("m1") != 0 {
		t.Errorf("current client not removed")
	}
}

func TestBroadcastTurnSendsResultAndState(t *testing.T) {
	h := NewHub()
	c := testClient("a", "m1", 8)
	h.add(c)

	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatal(err)
	}
	w, err := game.NewWorld(table, p, rules.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := game.NewMatch("m1", "tok", &game.MatchPlayer{ID: "a"}, &game.MatchPlayer{ID: "b"}, w, time.Minute)

	h.BroadcastTurn(m, rules.TurnResult{TurnNumber: 1, Shooter: 1, NextPlayer: 2})

	var types []string
	for len(c.send) > 0 {
		msg := <-c.send
		var v map[string]interface{}
		if err := json.Unmarshal(msg.data, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		types = append(types, v["type"].(string))
	}
	if strings.Join(types, ",") != "turn_result,game_update" {
		t.Errorf("messages = %v", types)
	}
}

func readType(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		var v map[string]interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v["type"] == want {
			return v
		}
	}
}

func TestMatchStartsWhenBothConnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := physics.DefaultParams()
	table, err := physics.NewStandardTable(p)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{TickRateHz: 60, MatchExpiryMinutes: 10, DisconnectGraceSeconds: 120}
	game.Manager = game.NewGameManager(nil, nil, cfg, table, p, nil)
	game.Manager.SetBroadcaster(GameHub)
	t.Cleanup(game.Manager.Shutdown)

	m, err := game.Manager.CreateTestMatch("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	router.GET("/match/:token/ws", HandleWebSocket)
	srv := httptest.NewServer(router)
	defer srv.Close()

	dial := func(pt string) *websocket.Conn {
		u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/match/" + m.Token + "/ws?pt=" + url.QueryEscape(pt)
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	c1 := dial(m.Player1.PlayerToken)
	readType(t, c1, "waiting_for_opponent")

	c2 := dial(m.Player2.PlayerToken)
	readType(t, c2, "match_starting")
	state := readType(t, c1, "game_state")
	if state["my_turn"] != true {
		t.Errorf("player 1 should break: %v", state)
	}

	// Out of turn shots are rejected with an error message.
	c2.WriteJSON(map[string]interface{}{"type": "take_shot", "data": map[string]float64{"angle": 0, "power": 1}})
	readType(t, c2, "error")

	// A legal break starts streaming binary frames.
	c1.WriteJSON(map[string]interface{}{"type": "take_shot", "data": map[string]float64{"angle": 0, "power": 1}})
	readType(t, c2, "shot_taken")
	c2.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		kind, data, err := c2.ReadMessage()
		if err != nil {
			t.Fatalf("no frame streamed: %v", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		var f game.Frame
		if err := msgpack.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if f.MatchID != m.ID || len(f.Balls) != physics.NumBalls {
			t.Errorf("frame = match %s with %d balls", f.MatchID, len(f.Balls))
		}
		break
	}
}
