package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
)

func seedSuggestion(t *testing.T, conv models.Conversation, sender string) (models.Message, models.MessageSuggestion) {
	t.Helper()
	msg := sendMessage(t, conv, sender, "we should track this", map[string]interface{}{
		"suggestions": []map[string]interface{}{
			{"type": "create_task", "payload": map[string]interface{}{"title": "track this"}},
		},
	})
	var sug models.MessageSuggestion
	database.DB.First(&sug, "message_id = ?", msg.ID)
	return msg, sug
}

func TestAcceptSuggestion(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("bob")
	conv := seedConversation(models.ConversationGroup, "general", "alice", "bob")
	msg, sug := seedSuggestion(t, conv, "alice")

	c, w := testContext("POST", "/api/messaging/messages/"+msg.ID+"/suggestions/"+sug.ID+"/accept",
		map[string]interface{}{"payload": map[string]interface{}{"boardId": "b1"}}, "bob")
	setParams(c, "id", msg.ID, "sid", sug.ID)
	AcceptSuggestion(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Suggestion models.MessageSuggestion `json:"suggestion"`
	}
	decodeBody(w, &resp)
	assert.Equal(t, models.SuggestionAccepted, resp.Suggestion.Status)
	assert.NotNil(t, resp.Suggestion.ResolvedAt)
	assert.Equal(t, "bob", *resp.Suggestion.ResolvedBy)
}

func TestResolveSuggestion_TerminalStatesConflict(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	conv := seedConversation(models.ConversationGroup, "general", "alice")
	msg, sug := seedSuggestion(t, conv, "alice")

	c, w := testContext("POST", "/api/messaging/messages/"+msg.ID+"/suggestions/"+sug.ID+"/dismiss", nil, "alice")
	setParams(c, "id", msg.ID, "sid", sug.ID)
	DismissSuggestion(c)
	assert.Equal(t, http.StatusOK, w.Code)

	// Dismissing again conflicts
	c2, w2 := testContext("POST", "/api/messaging/messages/"+msg.ID+"/suggestions/"+sug.ID+"/dismiss", nil, "alice")
	setParams(c2, "id", msg.ID, "sid", sug.ID)
	DismissSuggestion(c2)
	assert.Equal(t, http.StatusConflict, w2.Code)

	// Accepting a dismissed suggestion conflicts too, and the stored
	// status does not move.
	c3, w3 := testContext("POST", "/api/messaging/messages/"+msg.ID+"/suggestions/"+sug.ID+"/accept", nil, "alice")
	setParams(c3, "id", msg.ID, "sid", sug.ID)
	AcceptSuggestion(c3)
	assert.Equal(t, http.StatusConflict, w3.Code)

	var stored models.MessageSuggestion
	database.DB.First(&stored, "id = ?", sug.ID)
	assert.Equal(t, models.SuggestionDismissed, stored.Status)
}

func TestResolveSuggestion_NonMemberRejected(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("mallory")
	conv := seedConversation(models.ConversationGroup, "private", "alice")
	msg, sug := seedSuggestion(t, conv, "alice")

	c, w := testContext("POST", "/api/messaging/messages/"+msg.ID+"/suggestions/"+sug.ID+"/accept", nil, "mallory")
	setParams(c, "id", msg.ID, "sid", sug.ID)
	AcceptSuggestion(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListSuggestions(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	conv := seedConversation(models.ConversationGroup, "general", "alice")
	msg, _ := seedSuggestion(t, conv, "alice")

	c, w := testContext("GET", "/api/messaging/messages/"+msg.ID+"/suggestions", nil, "alice")
	setParams(c, "id", msg.ID)
	ListSuggestions(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Suggestions []models.MessageSuggestion `json:"suggestions"`
	}
	decodeBody(w, &resp)
	assert.Len(t, resp.Suggestions, 1)
	assert.Equal(t, models.SuggestionCreateTask, resp.Suggestions[0].Type)
	assert.Equal(t, models.SuggestionPending, resp.Suggestions[0].Status)
}
