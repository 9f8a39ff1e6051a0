package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
	apperrors "github.com/Dvorinka/Trackeep-sub002/pkg/errors"
	"github.com/Dvorinka/Trackeep-sub002/pkg/logger"
	"github.com/Dvorinka/Trackeep-sub002/pkg/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ListMessages returns one page of conversation history, newest first.
// cursor is the seq boundary from the previous page's next_cursor; pages
// never overlap and never skip for a static dataset.
func ListMessages(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	if _, err := getMembership(convId, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var cursor int64
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
			return
		}
		cursor = n
	}

	query := database.DB.
		Where("conversation_id = ?", convId).
		Order("seq DESC").
		Limit(limit + 1).
		Preload("Sender").
		Preload("Attachments").
		Preload("References").
		Preload("Reactions.User").
		Preload("Suggestions")
	if cursor > 0 {
		query = query.Where("seq < ?", cursor)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	var nextCursor *int64
	if len(messages) > limit {
		messages = messages[:limit]
		boundary := messages[len(messages)-1].Seq
		nextCursor = &boundary
	}

	for i := range messages {
		messages[i].Redact()
	}

	resp := gin.H{"messages": messages}
	if nextCursor != nil {
		resp["next_cursor"] = *nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

type attachmentInput struct {
	Kind         models.AttachmentKind `json:"kind" binding:"required"`
	FileID       *string               `json:"fileId"`
	OriginalName *string               `json:"originalName"`
	MimeType     *string               `json:"mimeType"`
	URL          *string               `json:"url"`
	Preview      datatypes.JSON        `json:"preview"`
}

type referenceInput struct {
	EntityType string `json:"entityType" binding:"required"`
	EntityID   string `json:"entityId" binding:"required"`
	DeepLink   string `json:"deepLink"`
}

type suggestionInput struct {
	Type    models.SuggestionType `json:"type" binding:"required"`
	Payload datatypes.JSON        `json:"payload"`
}

// SendMessage creates a message with its attachments, references and any
// suggestions the generator collaborator attached to the send. The
// suggestions come back in the response's advisory warning channel; they
// never block the send.
func SendMessage(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	var req struct {
		Body        string            `json:"body" binding:"required"`
		IsSensitive bool              `json:"isSensitive"`
		Metadata    datatypes.JSON    `json:"metadata"`
		Attachments []attachmentInput `json:"attachments"`
		References  []referenceInput  `json:"references"`
		Suggestions []suggestionInput `json:"suggestions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	body, ok := utils.NormalizeMessageBody(req.Body)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is empty or too long"})
		return
	}
	for _, s := range req.Suggestions {
		if !models.IsValidSuggestionType(s.Type) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown suggestion type"})
			return
		}
	}

	member, err := getMembership(convId, userId)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}
	if !member.CanPost() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Viewers cannot send messages"})
		return
	}

	var conv models.Conversation
	if err := database.DB.First(&conv, "id = ?", convId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if conv.IsArchived {
		e := apperrors.Conflict("Conversation is archived")
		c.JSON(e.Code, gin.H{"error": e.Message})
		return
	}

	// Per-user send throttle on top of the IP limiter
	if database.Redis != nil {
		if allowed, err := database.CheckRateLimit("send:"+userId, 30, time.Minute); err == nil && !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many messages, slow down"})
			return
		}
	}

	msg := models.Message{
		ConversationID: convId,
		SenderID:       userId,
		Body:           body,
		IsSensitive:    req.IsSensitive,
		Metadata:       req.Metadata,
		CreatedAt:      time.Now(),
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		for _, a := range req.Attachments {
			att := models.MessageAttachment{
				MessageID:    msg.ID,
				Kind:         a.Kind,
				FileID:       a.FileID,
				OriginalName: a.OriginalName,
				MimeType:     a.MimeType,
				URL:          a.URL,
				Preview:      a.Preview,
			}
			if err := tx.Create(&att).Error; err != nil {
				return err
			}
		}
		for _, r := range req.References {
			ref := models.MessageReference{
				MessageID:  msg.ID,
				EntityType: r.EntityType,
				EntityID:   r.EntityID,
				DeepLink:   r.DeepLink,
			}
			if err := tx.Create(&ref).Error; err != nil {
				return err
			}
		}
		for _, s := range req.Suggestions {
			sug := models.MessageSuggestion{
				MessageID: msg.ID,
				Type:      s.Type,
				Payload:   s.Payload,
			}
			if err := tx.Create(&sug).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", convId).
			Update("last_message_at", msg.CreatedAt).Error
	})
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", convId).Msg("Failed to send message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	database.DB.
		Preload("Sender").
		Preload("Attachments").
		Preload("References").
		Preload("Suggestions").
		First(&msg, "id = ?", msg.ID)
	msg.Redact()

	broadcastToConversation(convId, ws.Event{
		Type: ws.EventMessageCreated,
		Data: gin.H{"message": msg},
	})
	invalidateConversationLists(convId)

	resp := gin.H{"message": msg}
	if len(msg.Suggestions) > 0 {
		resp["warning"] = gin.H{
			"type":        "suggestions",
			"suggestions": msg.Suggestions,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// EditMessage replaces the body in place and stamps edited_at. Sender only.
func EditMessage(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	body, ok := utils.NormalizeMessageBody(req.Body)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is empty or too long"})
		return
	}

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if msg.SenderID != userId {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender can edit a message"})
		return
	}
	if msg.DeletedAt != nil {
		e := apperrors.Conflict("Cannot edit a deleted message")
		c.JSON(e.Code, gin.H{"error": e.Message})
		return
	}

	now := time.Now()
	if err := database.DB.Model(&msg).Updates(map[string]interface{}{
		"body":      body,
		"edited_at": now,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to edit message"})
		return
	}

	database.DB.Preload("Sender").First(&msg, "id = ?", msgId)
	msg.Redact()

	broadcastToConversation(msg.ConversationID, ws.Event{
		Type: ws.EventMessageUpdated,
		Data: gin.H{"message": msg},
	})

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage soft-deletes: the row and its reactions and suggestions
// persist for thread integrity, reads render a tombstone. No-op safe.
func DeleteMessage(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if msg.SenderID != userId {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender can delete a message"})
		return
	}

	if msg.DeletedAt == nil {
		now := time.Now()
		if err := database.DB.Model(&msg).Update("deleted_at", now).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
			return
		}

		broadcastToConversation(msg.ConversationID, ws.Event{
			Type: ws.EventMessageDeleted,
			Data: gin.H{"messageId": msg.ID},
		})
		invalidateConversationLists(msg.ConversationID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// RevealSensitive returns the true body of a sensitive message for this
// single request. Stored redaction state never changes, so every render
// needs a fresh reveal. Each call is audit-logged.
func RevealSensitive(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if msg.DeletedAt != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if _, err := getMembership(msg.ConversationID, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}
	if !msg.IsSensitive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is not sensitive"})
		return
	}

	logger.Info().
		Str("user_id", userId).
		Str("message_id", msg.ID).
		Str("conversation_id", msg.ConversationID).
		Msg("sensitive message revealed")

	c.JSON(http.StatusOK, gin.H{
		"message_id": msg.ID,
		"plaintext":  msg.Body,
	})
}
