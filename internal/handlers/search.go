package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/pkg/utils"
)

// SearchMessages is the offset-paginated counterpart to conversation
// history: jump-to-a-match needs a total and random access, so it does
// not share the cursor scheme. Results are scoped to conversations the
// caller belongs to and redacted like any other read.
func SearchMessages(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var req struct {
		Query             string   `json:"query" binding:"required"`
		ConversationIDs   []string `json:"conversationIds"`
		ConversationTypes []string `json:"conversationTypes"`
		SenderIDs         []string `json:"senderIds"`
		Limit             int      `json:"limit"`
		Offset            int      `json:"offset"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := utils.SanitizeSearchQuery(req.Query)

	query := database.DB.Model(&models.Message{}).
		Joins("JOIN conversation_members cm ON cm.conversation_id = messages.conversation_id AND cm.user_id = ?", userId).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.deleted_at IS NULL").
		// Sensitive bodies are not searchable: matching against them
		// would leak redacted content one query at a time.
		Where("messages.is_sensitive = ?", false).
		// LOWER/LOWER instead of ILIKE so the sqlite test driver
		// matches case-insensitively the same way postgres does
		Where("LOWER(messages.body) LIKE LOWER(?) ESCAPE '\\'", pattern)

	// Array binding below is postgres-only
	if len(req.ConversationIDs) > 0 {
		query = query.Where("messages.conversation_id = ANY(?)", pq.Array(req.ConversationIDs))
	}
	if len(req.ConversationTypes) > 0 {
		query = query.Where("conversations.type = ANY(?)", pq.Array(req.ConversationTypes))
	}
	if len(req.SenderIDs) > 0 {
		query = query.Where("messages.sender_id = ANY(?)", pq.Array(req.SenderIDs))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	var results []models.Message
	if err := query.
		Order("messages.seq DESC").
		Limit(limit).
		Offset(offset).
		Preload("Sender").
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	for i := range results {
		results[i].Redact()
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
