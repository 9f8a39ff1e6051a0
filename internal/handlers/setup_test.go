package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
)

// SetupTestDB initializes an in-memory SQLite DB for testing
func SetupTestDB() {
	db, _ := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	database.DB = db
	database.DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.MessageAttachment{},
		&models.MessageReference{},
		&models.MessageReaction{},
		&models.MessageSuggestion{},
		&models.VaultItem{},
		&models.VaultItemShare{},
	)
}

func seedUser(id string) models.User {
	u := models.User{ID: id, Username: id, Email: id + "@example.com"}
	database.DB.Create(&u)
	return u
}

func seedConversation(convType models.ConversationType, name string, ownerID string, memberIDs ...string) models.Conversation {
	conv := models.Conversation{Type: convType, Name: name, CreatedBy: ownerID}
	database.DB.Create(&conv)
	database.DB.Create(&models.ConversationMember{
		ConversationID: conv.ID, UserID: ownerID, Role: models.RoleOwner, JoinedAt: time.Now(),
	})
	for _, id := range memberIDs {
		database.DB.Create(&models.ConversationMember{
			ConversationID: conv.ID, UserID: id, Role: models.RoleMember, JoinedAt: time.Now(),
		})
	}
	return conv
}

// testContext builds a gin context with an authenticated user and an
// optional JSON body, mirroring what the auth middleware would set up.
func testContext(method, path string, body interface{}, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request, _ = http.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("userId", userID)
	return c, w
}

func setParams(c *gin.Context, pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Params = append(c.Params, gin.Param{Key: pairs[i], Value: pairs[i+1]})
	}
}

func decodeBody(w *httptest.ResponseRecorder, dest interface{}) {
	json.Unmarshal(w.Body.Bytes(), dest)
}
