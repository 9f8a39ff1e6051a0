package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Dvorinka/Trackeep-sub002/internal/config"
	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/pkg/utils"
)

func setupHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	// The hub queries from connection goroutines; a second pooled
	// connection would see its own empty in-memory database.
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	database.DB = db
	db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.ConversationMember{})

	config.AppConfig = &config.Config{JWTSecret: "test-secret"}

	h := InitHub()
	r := gin.New()
	r.GET("/ws", h.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func seedHubConversation(t *testing.T, memberIDs ...string) models.Conversation {
	t.Helper()
	conv := models.Conversation{Type: models.ConversationGroup, Name: "room", CreatedBy: memberIDs[0]}
	database.DB.Create(&conv)
	for _, id := range memberIDs {
		database.DB.Create(&models.ConversationMember{
			ConversationID: conv.ID, UserID: id, Role: models.RoleMember, JoinedAt: time.Now(),
		})
	}
	return conv
}

func dialHub(srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(u, nil)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// readEventOfType skips interleaved frames (presence updates) until the
// wanted type arrives.
func readEventOfType(t *testing.T, conn *websocket.Conn, typ string) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s event: %v", typ, err)
		}
		var ev Event
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if ev.Type == typ {
			return ev
		}
	}
}

func (h *Hub) roomHasClients(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room]) > 0
}

func TestHandler_RejectsUnauthenticatedUpgrade(t *testing.T) {
	_, srv := setupHub(t)

	_, resp, err := dialHub(srv, "")
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialHub(srv, "not-a-jwt")
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_DeliversConversationEvents(t *testing.T) {
	h, srv := setupHub(t)
	conv := seedHubConversation(t, "alice")

	token, err := utils.GenerateToken("alice")
	assert.NoError(t, err)

	conn, _, err := dialHub(srv, token)
	assert.NoError(t, err)
	defer conn.Close()

	// Membership-derived rooms are joined during registration
	waitUntil(t, func() bool { return h.IsUserOnline("alice") })
	assert.Contains(t, h.GetOnlineUsers(), "alice")

	h.BroadcastToConversation(conv.ID, Event{
		Type: EventMessageCreated,
		Data: map[string]interface{}{"messageId": "m1"},
	})

	ev := readEventOfType(t, conn, EventMessageCreated)
	assert.Equal(t, conv.ID, ev.ConversationID)
	assert.NotZero(t, ev.Timestamp)
}

func TestJoinFrame_MembershipGated(t *testing.T) {
	h, srv := setupHub(t)
	mine := seedHubConversation(t, "alice")
	theirs := seedHubConversation(t, "bob")

	token, _ := utils.GenerateToken("alice")
	conn, _, err := dialHub(srv, token)
	assert.NoError(t, err)
	defer conn.Close()

	waitUntil(t, func() bool { return h.roomHasClients(mine.ID) })

	// A join for someone else's conversation must not create the room.
	// Frames are processed in order, so once the leave below lands the
	// rejected join has already been handled.
	conn.WriteJSON(map[string]string{"type": "join", "conversation_id": theirs.ID})
	conn.WriteJSON(map[string]string{"type": "leave", "conversation_id": mine.ID})
	waitUntil(t, func() bool { return !h.roomHasClients(mine.ID) })
	assert.False(t, h.roomHasClients(theirs.ID))

	// Re-joining a conversation the user belongs to works
	conn.WriteJSON(map[string]string{"type": "join", "conversation_id": mine.ID})
	waitUntil(t, func() bool { return h.roomHasClients(mine.ID) })
}

func TestMalformedInboundFramesDropped(t *testing.T) {
	h, srv := setupHub(t)
	conv := seedHubConversation(t, "alice")

	token, _ := utils.GenerateToken("alice")
	conn, _, err := dialHub(srv, token)
	assert.NoError(t, err)
	defer conn.Close()

	waitUntil(t, func() bool { return h.IsUserOnline("alice") })

	// Garbage must not kill the connection
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))

	h.BroadcastToConversation(conv.ID, Event{Type: EventMessageCreated})
	ev := readEventOfType(t, conn, EventMessageCreated)
	assert.Equal(t, conv.ID, ev.ConversationID)
	assert.True(t, h.IsUserOnline("alice"))
}

func TestPresence_RefcountsConnections(t *testing.T) {
	h, srv := setupHub(t)
	seedHubConversation(t, "alice")

	token, _ := utils.GenerateToken("alice")

	c1, _, err := dialHub(srv, token)
	assert.NoError(t, err)
	c2, _, err := dialHub(srv, token)
	assert.NoError(t, err)

	online := func() int {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.online["alice"]
	}
	waitUntil(t, func() bool { return online() == 2 })

	// Two tabs, one presence entry
	assert.Equal(t, []string{"alice"}, h.GetOnlineUsers())

	// Closing one connection keeps the user online
	c1.Close()
	waitUntil(t, func() bool { return online() == 1 })
	assert.True(t, h.IsUserOnline("alice"))

	c2.Close()
	waitUntil(t, func() bool { return !h.IsUserOnline("alice") })
	assert.Empty(t, h.GetOnlineUsers())
}
