package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playpool/billiards/internal/game"
	"github.com/playpool/billiards/internal/rules"
	"github.com/vmihailenco/msgpack/v5"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked by middleware.WebSocketCORSCheck before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// outbound is a queued websocket write: JSON as text, frames as binary.
type outbound struct {
	kind int
	data []byte
}

// Client represents a connected WebSocket client
type Client struct {
	conn       *websocket.Conn
	playerID   string
	matchID    string
	matchToken string
	send       chan outbound
}

// Hub maintains the set of active clients
type Hub struct {
	clients    map[string]*Client            // playerID -> Client
	rooms      map[string]map[string]*Client // matchID -> playerID -> Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// add puts a client in the lookup tables, returning the connection it replaced.
func (h *Hub) add(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.clients[c.playerID]
	if old != nil {
		if room, exists := h.rooms[old.matchID]; exists {
			delete(room, old.playerID)
		}
	}
	h.clients[c.playerID] = c
	if _, exists := h.rooms[c.matchID]; !exists {
		h.rooms[c.matchID] = make(map[string]*Client)
	}
	h.rooms[c.matchID][c.playerID] = c
	return old
}

// remove drops c if it is still the current connection for its player.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.playerID]; !ok || cur != c {
		return false
	}
	delete(h.clients, c.playerID)
	if room, exists := h.rooms[c.matchID]; exists {
		delete(room, c.playerID)
		if len(room) == 0 {
			delete(h.rooms, c.matchID)
		}
	}
	return true
}

func (h *Hub) roomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func (h *Hub) broadcast(matchID string, msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[matchID] {
		select {
		case client.send <- msg:
		default:
			// Client's buffer is full
			log.Printf("[WS] send buffer full for player %s in match %s, dropping message", client.playerID, matchID)
		}
	}
}

// BroadcastToMatch sends a JSON message to all players in a match
func (h *Hub) BroadcastToMatch(matchID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}
	h.broadcast(matchID, outbound{kind: websocket.TextMessage, data: data})
}

// SendToPlayer sends a JSON message to a specific player
func (h *Hub) SendToPlayer(playerID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[playerID]
	if !exists {
		log.Printf("[WS] SendToPlayer no client for player %s", playerID)
		return
	}
	select {
	case client.send <- outbound{kind: websocket.TextMessage, data: data}:
	default:
		log.Printf("[WS] SendToPlayer dropped message for player %s (buffer full)", playerID)
	}
}

// BroadcastFrame streams one simulated frame as msgpack.
func (h *Hub) BroadcastFrame(m *game.Match, f game.Frame) {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		log.Printf("[WS] Error encoding frame %d for match %s: %v", f.Seq, m.ID, err)
		return
	}
	h.broadcast(m.ID, outbound{kind: websocket.BinaryMessage, data: data})
}

// BroadcastTurn announces a finished turn, then sends each player their view.
func (h *Hub) BroadcastTurn(m *game.Match, res rules.TurnResult) {
	h.BroadcastToMatch(m.ID, map[string]interface{}{
		"type": "turn_result",
		"turn": res,
	})
	h.broadcastMatchState(m, "game_update")
}

// broadcastMatchState sends personalized state to each player.
func (h *Hub) broadcastMatchState(m *game.Match, msgType string) {
	for _, p := range []*game.MatchPlayer{m.Player1, m.Player2} {
		if p == nil {
			continue
		}
		state := m.GetStateForPlayer(p.ID)
		state["type"] = msgType
		h.SendToPlayer(p.ID, state)
	}
}

// Message types
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed: the connection was replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.kind, message.data); err != nil {
				log.Printf("[WS] write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for player %s: %v", c.playerID, err)
				return
			}
		}
	}
}

// sendJSON queues a message for this client only.
func (c *Client) sendJSON(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.send <- outbound{kind: websocket.TextMessage, data: data}:
	default:
		log.Printf("[WS] dropped message for player %s (buffer full)", c.playerID)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	c.sendJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}
