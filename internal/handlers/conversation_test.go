package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
)

func TestCreateDMConversation_DedupedByPair(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("bob")

	c, w := testContext("POST", "/api/messaging/conversations", map[string]interface{}{
		"type":           "dm",
		"participantIds": []string{"bob"},
	}, "alice")
	CreateConversation(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	var first struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(w, &first)
	assert.NotEmpty(t, first.Conversation.ID)

	// Same pair from the other side resolves to the existing conversation
	c2, w2 := testContext("POST", "/api/messaging/conversations", map[string]interface{}{
		"type":           "dm",
		"participantIds": []string{"alice"},
	}, "bob")
	CreateConversation(c2)
	assert.Equal(t, http.StatusOK, w2.Code)

	var second struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(w2, &second)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestCreateDMConversation_RequiresExactlyTwo(t *testing.T) {
	SetupTestDB()
	seedUser("alice")

	c, w := testContext("POST", "/api/messaging/conversations", map[string]interface{}{
		"type":           "dm",
		"participantIds": []string{"bob", "carol"},
	}, "alice")
	CreateConversation(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSelfConversation_Idempotent(t *testing.T) {
	SetupTestDB()
	seedUser("alice")

	c, w := testContext("POST", "/api/messaging/conversations", map[string]interface{}{"type": "self"}, "alice")
	CreateConversation(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	var first struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(w, &first)

	c2, w2 := testContext("POST", "/api/messaging/conversations", map[string]interface{}{"type": "self"}, "alice")
	CreateConversation(c2)
	assert.Equal(t, http.StatusOK, w2.Code)

	var second struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decodeBody(w2, &second)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	var count int64
	database.DB.Model(&models.Conversation{}).
		Where("type = ? AND created_by = ?", models.ConversationSelf, "alice").
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGetConversation_NonMemberRejected(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("mallory")
	conv := seedConversation(models.ConversationGroup, "private", "alice")

	c, w := testContext("GET", "/api/messaging/conversations/"+conv.ID, nil, "mallory")
	setParams(c, "id", conv.ID)
	GetConversation(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListConversations_UnreadCountsAndOrdering(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("bob")

	older := seedConversation(models.ConversationGroup, "older", "alice", "bob")
	newer := seedConversation(models.ConversationGroup, "newer", "alice", "bob")

	// Two messages from alice in "newer", one in "older"; bob read nothing
	sendAs := func(conv models.Conversation, sender, body string) models.Message {
		c, w := testContext("POST", "/api/messaging/conversations/"+conv.ID+"/messages",
			map[string]interface{}{"body": body}, sender)
		setParams(c, "id", conv.ID)
		SendMessage(c)
		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Message models.Message `json:"message"`
		}
		decodeBody(w, &resp)
		return resp.Message
	}

	sendAs(older, "alice", "first")
	time.Sleep(5 * time.Millisecond)
	sendAs(newer, "alice", "second")
	sendAs(newer, "alice", "third")

	c, w := testContext("GET", "/api/messaging/conversations", nil, "bob")
	ListConversations(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Conversations []ConversationListItem `json:"conversations"`
	}
	decodeBody(w, &resp)
	assert.Len(t, resp.Conversations, 2)

	// Most recently active first
	assert.Equal(t, newer.ID, resp.Conversations[0].Conversation.ID)
	assert.Equal(t, int64(2), resp.Conversations[0].UnreadCount)
	assert.Equal(t, older.ID, resp.Conversations[1].Conversation.ID)
	assert.Equal(t, int64(1), resp.Conversations[1].UnreadCount)

	// Last message preview rides along
	assert.NotNil(t, resp.Conversations[0].LastMessage)
	assert.Equal(t, "third", resp.Conversations[0].LastMessage.Body)

	// The sender's own messages never count as unread
	ca, wa := testContext("GET", "/api/messaging/conversations", nil, "alice")
	ListConversations(ca)
	var aliceResp struct {
		Conversations []ConversationListItem `json:"conversations"`
	}
	decodeBody(wa, &aliceResp)
	for _, item := range aliceResp.Conversations {
		assert.Equal(t, int64(0), item.UnreadCount)
	}
}

func TestMarkRead_WatermarkNeverRegresses(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("bob")
	conv := seedConversation(models.ConversationGroup, "general", "alice", "bob")

	var first, second models.Message
	for i, body := range []string{"one", "two"} {
		c, w := testContext("POST", "/api/messaging/conversations/"+conv.ID+"/messages",
			map[string]interface{}{"body": body}, "alice")
		setParams(c, "id", conv.ID)
		SendMessage(c)
		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Message models.Message `json:"message"`
		}
		decodeBody(w, &resp)
		if i == 0 {
			first = resp.Message
		} else {
			second = resp.Message
		}
	}

	markRead := func(messageID string) models.ConversationMember {
		c, w := testContext("POST", "/api/messaging/conversations/"+conv.ID+"/read",
			map[string]interface{}{"messageId": messageID}, "bob")
		setParams(c, "id", conv.ID)
		MarkConversationRead(c)
		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Membership models.ConversationMember `json:"membership"`
		}
		decodeBody(w, &resp)
		return resp.Membership
	}

	m := markRead(second.ID)
	assert.Equal(t, second.Seq, m.LastReadSeq)

	// Marking an older message must not move the watermark backwards
	m = markRead(first.ID)
	assert.Equal(t, second.Seq, m.LastReadSeq)
}

func TestArchiveConversation_OwnerOnly(t *testing.T) {
	SetupTestDB()
	seedUser("alice")
	seedUser("bob")
	conv := seedConversation(models.ConversationGroup, "general", "alice", "bob")

	// Member (not owner/admin) cannot archive
	c, w := testContext("POST", "/api/messaging/conversations/"+conv.ID+"/archive",
		map[string]interface{}{"archived": true}, "bob")
	setParams(c, "id", conv.ID)
	ArchiveConversation(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c2, w2 := testContext("POST", "/api/messaging/conversations/"+conv.ID+"/archive",
		map[string]interface{}{"archived": true}, "alice")
	setParams(c2, "id", conv.ID)
	ArchiveConversation(c2)
	assert.Equal(t, http.StatusOK, w2.Code)

	var archived models.Conversation
	database.DB.First(&archived, "id = ?", conv.ID)
	assert.True(t, archived.IsArchived)
}
