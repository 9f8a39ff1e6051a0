package handlers

import (
	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
)

// getMembership loads the caller's membership row, the authorization
// anchor for every conversation-scoped operation.
func getMembership(conversationID, userID string) (*models.ConversationMember, error) {
	var member models.ConversationMember
	err := database.DB.First(&member, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Real-time emission helpers; nil hub means no-op (unit tests)

func broadcastToConversation(conversationID string, event ws.Event) {
	if ws.DefaultHub != nil {
		ws.DefaultHub.BroadcastToConversation(conversationID, event)
	}
}

func broadcastToUser(userID string, event ws.Event) {
	if ws.DefaultHub != nil {
		ws.DefaultHub.BroadcastToUser(userID, event)
	}
}

// invalidateConversationLists drops the cached conversation list of every
// member of the conversation. Safe to call without Redis.
func invalidateConversationLists(conversationID string) {
	if database.Redis == nil {
		return
	}
	var userIDs []string
	database.DB.Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &userIDs)
	for _, id := range userIDs {
		database.CacheInvalidate(database.ConversationListCacheKey(id))
	}
}
