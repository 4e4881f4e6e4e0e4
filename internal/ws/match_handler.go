package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playpool/billiards/internal/accounts"
	"github.com/playpool/billiards/internal/game"
)

type TakeShotData struct {
	Angle   float64 `json:"angle"`
	Power   float64 `json:"power"`
	English float64 `json:"english"`
	Screw   float64 `json:"screw"`
}

type PlaceCueBallData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GameHub is the single hub for all matches.
var GameHub *Hub

func init() {
	GameHub = NewHub()
	go runGameHub(GameHub)
}

// resolvePlayer finds the seat a connection belongs to, by player token or
// by a login JWT.
func resolvePlayer(m *game.Match, playerToken, accessToken string) (*game.MatchPlayer, error) {
	if p := m.PlayerByToken(playerToken); p != nil {
		return p, nil
	}
	if accessToken == "" || wsConfig == nil {
		return nil, errors.New("invalid player token")
	}
	id, err := accounts.ParseToken(wsConfig.JWTSecret, accessToken)
	if err != nil {
		return nil, err
	}
	if p := m.PlayerByDBID(id); p != nil {
		return p, nil
	}
	return nil, errors.New("player is not seated in this match")
}

// HandleWebSocket upgrades a match connection.
// GET /api/v1/match/:token/ws?pt=<player token> or ?access_token=<jwt>
func HandleWebSocket(c *gin.Context) {
	matchToken := c.Param("token")
	if matchToken == "" {
		matchToken = c.Query("token")
	}
	playerToken := c.Query("pt")
	accessToken := c.Query("access_token")

	if matchToken == "" || (playerToken == "" && accessToken == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and pt or access_token required"})
		return
	}

	m, err := game.Manager.GetMatchByToken(matchToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	player, err := resolvePlayer(m, playerToken, accessToken)
	if err != nil {
		log.Printf("[AUTH] Rejected websocket for match %s: %v", matchToken, err)
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		playerID:   player.ID,
		matchID:    m.ID,
		matchToken: m.Token,
		send:       make(chan outbound, 256),
	}

	GameHub.register <- client

	go client.writePump()
	go client.readPump()
}

func runGameHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.onRegister(client)
		case client := <-h.unregister:
			h.onUnregister(client)
		}
	}
}

func (h *Hub) onRegister(client *Client) {
	isReconnect := false
	if old := h.add(client); old != nil {
		log.Printf("[WS] Player %s reconnecting - closing old connection", client.playerID)
		if old.conn != nil {
			old.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second))
			old.conn.Close()
		}
		isReconnect = true
	}
	log.Printf("[WS] Player %s connected to match %s", client.playerID, client.matchID)

	m, err := game.Manager.GetMatchByToken(client.matchToken)
	if err != nil {
		log.Printf("[WS] Match not found for token %s: %v", client.matchToken, err)
		return
	}

	wasDisconnected := m.SetPlayerConnected(client.playerID, true)
	m.MarkPlayerShowedUp(client.playerID)

	switch {
	case m.IsWaiting() && m.BothPlayersConnected():
		log.Printf("[WS] Both players connected - starting match %s", m.ID)
		go h.startMatch(m)

	case m.IsWaiting():
		h.SendToPlayer(client.playerID, map[string]interface{}{
			"type":    "waiting_for_opponent",
			"message": "Waiting for opponent...",
		})

	default:
		state := m.GetStateForPlayer(client.playerID)
		state["type"] = "game_state"
		h.SendToPlayer(client.playerID, state)
	}

	if (isReconnect || wasDisconnected) && m.IsInProgress() {
		h.BroadcastToMatch(client.matchID, map[string]interface{}{
			"type":    "player_connected",
			"player":  client.playerID,
			"message": "Opponent connected",
		})
	}
}

// startMatch gives both sockets a moment to settle, then breaks off.
func (h *Hub) startMatch(m *game.Match) {
	time.Sleep(150 * time.Millisecond)
	if !m.IsWaiting() || !m.BothPlayersConnected() {
		return
	}
	if !game.Manager.StartMatch(m) {
		return
	}
	h.BroadcastToMatch(m.ID, map[string]interface{}{
		"type":    "match_starting",
		"message": "Both players connected! Break shot...",
	})
	h.broadcastMatchState(m, "game_state")
}

func (h *Hub) onUnregister(client *Client) {
	if !h.remove(client) {
		return
	}
	close(client.send)
	log.Printf("[WS] Player %s disconnected from match %s", client.playerID, client.matchID)

	m, err := game.Manager.GetMatchByToken(client.matchToken)
	if err != nil {
		return
	}
	m.SetPlayerDisconnected(client.playerID)
	if !m.IsInProgress() {
		return
	}
	graceSeconds := game.Manager.GetConfig().DisconnectGraceSeconds
	h.BroadcastToMatch(client.matchID, map[string]interface{}{
		"type":          "player_disconnected",
		"player":        client.playerID,
		"grace_seconds": graceSeconds,
		"message":       fmt.Sprintf("Opponent disconnected. Waiting %d seconds...", graceSeconds),
	})
}

// readPump reads client messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		GameHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] unexpected close for player %s: %v", c.playerID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("Invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one client message.
func (c *Client) handleMessage(msg WSMessage) {
	m, err := game.Manager.GetMatchByToken(c.matchToken)
	if err != nil {
		c.sendError("Match not found")
		return
	}

	switch msg.Type {
	case "take_shot":
		var data TakeShotData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid shot data")
			return
		}
		c.handleTakeShot(m, data)

	case "place_cue_ball":
		var data PlaceCueBallData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid placement data")
			return
		}
		c.handlePlaceCueBall(m, data)

	case "get_state":
		state := m.GetStateForPlayer(c.playerID)
		state["type"] = "game_state"
		c.sendJSON(state)

	case "concede":
		c.handleConcede(m)

	default:
		c.sendError("Unknown message type")
	}
}

// handleTakeShot strikes the cue ball and starts the frame runner. The
// result arrives later as frames and a turn_result.
func (c *Client) handleTakeShot(m *game.Match, data TakeShotData) {
	shot := game.ShotParams{
		Angle:   data.Angle,
		Power:   data.Power,
		English: data.English,
		Screw:   data.Screw,
	}
	if err := m.Shoot(c.playerID, shot); err != nil {
		c.sendError(err.Error())
		return
	}

	GameHub.BroadcastToMatch(c.matchID, map[string]interface{}{
		"type":        "shot_taken",
		"player":      c.playerID,
		"shot_params": shot,
	})
	game.Manager.StartRunner(m)
}

// handlePlaceCueBall processes cue ball placement.
func (c *Client) handlePlaceCueBall(m *game.Match, data PlaceCueBallData) {
	if err := m.PlaceCueBall(c.playerID, data.X, data.Y); err != nil {
		c.sendError(err.Error())
		return
	}

	GameHub.BroadcastToMatch(c.matchID, map[string]interface{}{
		"type": "ball_placed",
		"x":    data.X,
		"y":    data.Y,
	})
	GameHub.broadcastMatchState(m, "game_update")
	m.SaveToRedis()
}

// handleConcede ends the match in the opponent's favour.
func (c *Client) handleConcede(m *game.Match) {
	if !m.IsInProgress() {
		c.sendError("Match is not in progress")
		return
	}

	m.ForfeitByConcede(c.playerID)

	GameHub.BroadcastToMatch(c.matchID, map[string]interface{}{
		"type":    "player_conceded",
		"player":  c.playerID,
		"message": "Player conceded",
	})
	GameHub.broadcastMatchState(m, "game_state")
}
