package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
	apperrors "github.com/Dvorinka/Trackeep-sub002/pkg/errors"
)

// ListSuggestions returns all suggestions attached to a message.
func ListSuggestions(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if _, err := getMembership(msg.ConversationID, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	var suggestions []models.MessageSuggestion
	database.DB.Where("message_id = ?", msgId).Order("created_at asc").Find(&suggestions)

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// resolveSuggestion performs the one-way pending → terminal transition.
// The conditional update is the atomicity guard: whichever caller loses
// the race sees zero rows affected and gets the conflict, never a mutation.
func resolveSuggestion(c *gin.Context, target models.SuggestionStatus) (*models.MessageSuggestion, *models.Message, bool) {
	userId := c.MustGet("userId").(string)
	msgId := c.Param("id")
	sid := c.Param("sid")

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return nil, nil, false
	}
	if _, err := getMembership(msg.ConversationID, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return nil, nil, false
	}

	var sug models.MessageSuggestion
	if err := database.DB.First(&sug, "id = ? AND message_id = ?", sid, msgId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		return nil, nil, false
	}

	now := time.Now()
	result := database.DB.Model(&models.MessageSuggestion{}).
		Where("id = ? AND status = ?", sid, models.SuggestionPending).
		Updates(map[string]interface{}{
			"status":      target,
			"resolved_at": now,
			"resolved_by": userId,
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update suggestion"})
		return nil, nil, false
	}
	if result.RowsAffected == 0 {
		e := apperrors.Conflict("Suggestion already resolved")
		c.JSON(e.Code, gin.H{"error": e.Message})
		return nil, nil, false
	}

	database.DB.First(&sug, "id = ?", sid)

	broadcastToConversation(msg.ConversationID, ws.Event{
		Type: ws.EventSuggestionResolved,
		Data: gin.H{"suggestion": sug},
	})

	return &sug, &msg, true
}

// AcceptSuggestion moves a pending suggestion to accepted. The request
// payload is opaque here: it is echoed back for the downstream feature
// (task creation, bookmark save, ...) to interpret.
func AcceptSuggestion(c *gin.Context) {
	var req struct {
		Payload json.RawMessage `json:"payload"`
	}
	// Empty bodies are fine; the payload is optional
	c.ShouldBindJSON(&req)

	sug, _, ok := resolveSuggestion(c, models.SuggestionAccepted)
	if !ok {
		return
	}

	resp := gin.H{"suggestion": sug}
	if len(req.Payload) > 0 {
		resp["payload"] = req.Payload
	}
	c.JSON(http.StatusOK, resp)
}

// DismissSuggestion moves a pending suggestion to dismissed. Terminal:
// a dismissed suggestion cannot be resurrected.
func DismissSuggestion(c *gin.Context) {
	sug, _, ok := resolveSuggestion(c, models.SuggestionDismissed)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": sug})
}
