package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/pkg/logger"
	"github.com/Dvorinka/Trackeep-sub002/pkg/utils"
)

// Event is the frame shape shared with the transport client: inbound
// frames from the server always carry a type, usually a conversation id,
// and a payload under data.
type Event struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// Event types emitted by the hub.
const (
	EventMessageCreated      = "message_created"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventReactionAdded       = "reaction_added"
	EventReactionRemoved     = "reaction_removed"
	EventSuggestionResolved  = "suggestion_resolved"
	EventConversationCreated = "conversation_created"
	EventReadMarked          = "read_marked"
	EventVaultItemShared     = "vault_item_shared"
	EventVaultItemUnshared   = "vault_item_unshared"
	EventPresence            = "presence_update"
)

// inboundFrame is what connected clients may send: room management only.
// Everything that mutates state goes through REST.
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub owns every live websocket connection. Rooms are keyed by user id
// (personal room, always joined) and conversation id (joined from
// membership at connect, adjustable via join/leave frames).
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]bool
	// online user refcounts; a user with two tabs is one presence
	online map[string]int

	upgrader websocket.Upgrader
}

// DefaultHub is the process-wide hub, set by InitHub. Handlers nil-check
// it so unit tests can run without a hub.
var DefaultHub *Hub

func InitHub() *Hub {
	h := &Hub{
		rooms:  make(map[string]map[*client]bool),
		online: make(map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	DefaultHub = h
	return h
}

// Handler upgrades GET /ws?token= requests. The token is validated with
// the same JWT path as the REST middleware; upgrades without a valid
// token are rejected before the handshake completes.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.Query("auth_token") // Fallback
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		cl := &client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, sendBufferSize),
			userID: claims.UserID,
		}
		h.register(cl)

		go cl.writePump()
		go cl.readPump()
	}
}

func (h *Hub) register(cl *client) {
	// Personal room for targeted events, presence room for broadcasts
	h.join(cl, cl.userID)
	h.join(cl, "presence")

	// Join rooms for every conversation the user belongs to
	var convIDs []string
	database.DB.Model(&models.ConversationMember{}).
		Where("user_id = ?", cl.userID).
		Pluck("conversation_id", &convIDs)
	for _, id := range convIDs {
		h.join(cl, id)
	}

	h.mu.Lock()
	h.online[cl.userID]++
	first := h.online[cl.userID] == 1
	h.mu.Unlock()

	logger.Info().Str("user_id", cl.userID).Msg("websocket connected")

	if first {
		h.BroadcastToRoom("presence", Event{
			Type:      EventPresence,
			Data:      map[string]interface{}{"userId": cl.userID, "isOnline": true},
			Timestamp: time.Now().Unix(),
		})
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	for room, members := range h.rooms {
		if members[cl] {
			delete(members, cl)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.online[cl.userID]--
	last := h.online[cl.userID] <= 0
	if last {
		delete(h.online, cl.userID)
	}
	h.mu.Unlock()

	close(cl.send)

	if last {
		h.BroadcastToRoom("presence", Event{
			Type:      EventPresence,
			Data:      map[string]interface{}{"userId": cl.userID, "isOnline": false},
			Timestamp: time.Now().Unix(),
		})
	}
}

func (h *Hub) join(cl *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][cl] = true
}

func (h *Hub) leave(cl *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.rooms[room]; members != nil {
		delete(members, cl)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom fans an event out to every connection in a room.
// Slow consumers are skipped rather than blocking the hub.
func (h *Hub) BroadcastToRoom(room string, event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.rooms[room] {
		select {
		case cl.send <- payload:
		default:
		}
	}
}

// BroadcastToConversation targets the conversation's room.
func (h *Hub) BroadcastToConversation(conversationID string, event Event) {
	event.ConversationID = conversationID
	h.BroadcastToRoom(conversationID, event)
}

// BroadcastToUser targets a user's personal room (all their devices).
func (h *Hub) BroadcastToUser(userID string, event Event) {
	h.BroadcastToRoom(userID, event)
}

// GetOnlineUsers returns list of online user IDs
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.online))
	for userID := range h.online {
		users = append(users, userID)
	}
	return users
}

// IsUserOnline checks if a user has at least one live connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID] > 0
}

func (cl *client) readPump() {
	defer func() {
		cl.hub.unregister(cl)
		cl.conn.Close()
	}()

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Malformed payloads are dropped without surfacing an error
			continue
		}

		switch frame.Type {
		case "join":
			if frame.ConversationID == "" {
				continue
			}
			// Only members may join a conversation room
			var count int64
			database.DB.Model(&models.ConversationMember{}).
				Where("conversation_id = ? AND user_id = ?", frame.ConversationID, cl.userID).
				Count(&count)
			if count > 0 {
				cl.hub.join(cl, frame.ConversationID)
			}
		case "leave":
			if frame.ConversationID != "" {
				cl.hub.leave(cl, frame.ConversationID)
			}
		}
	}
}

func (cl *client) writePump() {
	defer cl.conn.Close()

	for payload := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	// send channel closed: deliberate unregister
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
