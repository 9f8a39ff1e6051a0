package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
)

// AddReaction is an idempotent set-add on (message, caller, emoji).
// Reacting twice returns the existing record unchanged. Tombstoned
// messages stay reactable for thread integrity.
func AddReaction(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji required"})
		return
	}
	if !models.IsValidReactionEmoji(req.Emoji) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Emoji not allowed"})
		return
	}

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if _, err := getMembership(msg.ConversationID, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	var reaction models.MessageReaction
	result := database.DB.
		Where("message_id = ? AND user_id = ? AND emoji = ?", msgId, userId, req.Emoji).
		FirstOrCreate(&reaction, models.MessageReaction{
			MessageID: msgId,
			UserID:    userId,
			Emoji:     req.Emoji,
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add reaction"})
		return
	}

	if result.RowsAffected > 0 {
		broadcastToConversation(msg.ConversationID, ws.Event{
			Type: ws.EventReactionAdded,
			Data: gin.H{"reaction": reaction},
		})
	}

	c.JSON(http.StatusOK, gin.H{"reaction": reaction})
}

// RemoveReaction is the idempotent inverse: removing a triple that does
// not exist still succeeds.
func RemoveReaction(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")
	emoji := c.Param("emoji")

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if _, err := getMembership(msg.ConversationID, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	result := database.DB.
		Where("message_id = ? AND user_id = ? AND emoji = ?", msgId, userId, emoji).
		Delete(&models.MessageReaction{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove reaction"})
		return
	}

	if result.RowsAffected > 0 {
		broadcastToConversation(msg.ConversationID, ws.Event{
			Type: ws.EventReactionRemoved,
			Data: gin.H{"messageId": msgId, "userId": userId, "emoji": emoji},
		})
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}
