package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
)

// ConversationListItem is one row of GET /conversations: the channel,
// the caller's role, unread accounting and the last message preview.
type ConversationListItem struct {
	Conversation models.Conversation `json:"conversation"`
	Role         models.MemberRole   `json:"role"`
	UnreadCount  int64               `json:"unreadCount"`
	MutedUntil   *time.Time          `json:"mutedUntil,omitempty"`
	LastMessage  *models.Message     `json:"lastMessage,omitempty"`
}

// ListConversations returns the caller's visible conversations ordered
// by recency, with unread counts derived from the read watermark.
func ListConversations(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	cacheKey := database.ConversationListCacheKey(userId)
	if database.Redis != nil {
		var cached []ConversationListItem
		if err := database.CacheGet(cacheKey, &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"conversations": cached})
			return
		}
	}

	var memberships []models.ConversationMember
	if err := database.DB.
		Where("user_id = ? AND is_hidden = ?", userId, false).
		Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}

	if len(memberships) == 0 {
		c.JSON(http.StatusOK, gin.H{"conversations": []ConversationListItem{}})
		return
	}

	byConv := make(map[string]models.ConversationMember, len(memberships))
	convIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		byConv[m.ConversationID] = m
		convIDs = append(convIDs, m.ConversationID)
	}

	var conversations []models.Conversation
	if err := database.DB.
		Where("id IN ?", convIDs).
		Order("last_message_at DESC NULLS LAST").
		Find(&conversations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}

	// Unread: messages past the caller's watermark, not their own,
	// tombstones excluded. One grouped query for all conversations.
	type unreadRow struct {
		ConversationID string
		Cnt            int64
	}
	var unread []unreadRow
	database.DB.Table("messages").
		Select("messages.conversation_id, COUNT(*) as cnt").
		Joins("JOIN conversation_members cm ON cm.conversation_id = messages.conversation_id AND cm.user_id = ?", userId).
		Where("messages.seq > cm.last_read_seq AND messages.sender_id <> ? AND messages.deleted_at IS NULL", userId).
		Group("messages.conversation_id").
		Scan(&unread)
	unreadByConv := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadByConv[u.ConversationID] = u.Cnt
	}

	// Last message per conversation
	var lastMessages []models.Message
	database.DB.
		Where("seq IN (?)", database.DB.Model(&models.Message{}).
			Select("MAX(seq)").
			Where("conversation_id IN ?", convIDs).
			Group("conversation_id")).
		Preload("Sender").
		Find(&lastMessages)
	lastByConv := make(map[string]models.Message, len(lastMessages))
	for _, m := range lastMessages {
		m.Redact()
		lastByConv[m.ConversationID] = m
	}

	items := make([]ConversationListItem, 0, len(conversations))
	for _, conv := range conversations {
		member := byConv[conv.ID]
		item := ConversationListItem{
			Conversation: conv,
			Role:         member.Role,
			UnreadCount:  unreadByConv[conv.ID],
			MutedUntil:   member.MutedUntil,
		}
		if last, ok := lastByConv[conv.ID]; ok {
			item.LastMessage = &last
		}
		items = append(items, item)
	}

	if database.Redis != nil {
		database.CacheSet(cacheKey, items, 15*time.Second)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": items})
}

// CreateConversation creates (or idempotently resolves) a conversation.
// Type-specific constraints: dm needs exactly two participants and is
// deduped by pair; self and global resolve to the existing channel.
func CreateConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var req struct {
		Type           models.ConversationType `json:"type" binding:"required"`
		Name           string                  `json:"name"`
		Topic          *string                 `json:"topic"`
		TeamID         *string                 `json:"teamId"`
		ParticipantIDs []string                `json:"participantIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !models.IsValidConversationType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown conversation type"})
		return
	}

	// Participant set always includes the caller
	participants := map[string]bool{userId: true}
	for _, id := range req.ParticipantIDs {
		if id != "" {
			participants[id] = true
		}
	}

	switch req.Type {
	case models.ConversationGlobal:
		var existing models.Conversation
		err := database.DB.First(&existing, "type = ? AND is_default = ?", models.ConversationGlobal, true).Error
		if err == nil {
			joinIfMissing(existing.ID, userId, models.RoleMember)
			c.JSON(http.StatusOK, gin.H{"conversation": existing})
			return
		}

	case models.ConversationSelf:
		var existing models.Conversation
		err := database.DB.First(&existing, "type = ? AND created_by = ?", models.ConversationSelf, userId).Error
		if err == nil {
			// One self conversation per user
			c.JSON(http.StatusOK, gin.H{"conversation": existing})
			return
		}
		participants = map[string]bool{userId: true}

	case models.ConversationPasswordVault:
		participants = map[string]bool{userId: true}

	case models.ConversationDM:
		if len(participants) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A dm requires exactly two participants"})
			return
		}

	case models.ConversationGroup:
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A group conversation requires a name"})
			return
		}

	case models.ConversationTeam:
		if req.Name == "" || req.TeamID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A team conversation requires a name and a team"})
			return
		}
	}

	conv := models.Conversation{
		Type:      req.Type,
		Name:      req.Name,
		Topic:     req.Topic,
		TeamID:    req.TeamID,
		CreatedBy: userId,
	}
	if req.Type == models.ConversationGlobal {
		conv.IsDefault = true
	}
	if req.Type == models.ConversationDM {
		var pair []string
		for id := range participants {
			pair = append(pair, id)
		}
		key := models.DMPairKey(pair[0], pair[1])

		var existing models.Conversation
		if err := database.DB.First(&existing, "pair_key = ?", key).Error; err == nil {
			c.JSON(http.StatusOK, gin.H{"conversation": existing})
			return
		}
		conv.PairKey = &key
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		for id := range participants {
			role := models.RoleMember
			if id == userId && req.Type != models.ConversationDM {
				role = models.RoleOwner
			}
			member := models.ConversationMember{
				ConversationID: conv.ID,
				UserID:         id,
				Role:           role,
				JoinedAt:       time.Now(),
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		return
	}

	database.DB.Preload("Members.User").First(&conv, "id = ?", conv.ID)

	for id := range participants {
		broadcastToUser(id, ws.Event{
			Type:           ws.EventConversationCreated,
			ConversationID: conv.ID,
			Data:           gin.H{"conversation": conv},
		})
	}
	invalidateConversationLists(conv.ID)

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func joinIfMissing(conversationID, userID string, role models.MemberRole) {
	var member models.ConversationMember
	database.DB.
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Attrs(models.ConversationMember{Role: role, JoinedAt: time.Now()}).
		FirstOrCreate(&member)
}

// GetConversation returns one conversation with the caller's membership
// and the full roster. Non-members are rejected.
func GetConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	member, err := getMembership(convId, userId)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	var conv models.Conversation
	if err := database.DB.First(&conv, "id = ?", convId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	var members []models.ConversationMember
	database.DB.Preload("User").Where("conversation_id = ?", convId).Find(&members)

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"membership":   member,
		"members":      members,
	})
}

// MarkConversationRead advances the caller's read watermark to the given
// message. The watermark never moves backwards.
func MarkConversationRead(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	var req struct {
		MessageID string `json:"messageId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messageId required"})
		return
	}

	if _, err := getMembership(convId, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	var msg models.Message
	if err := database.DB.First(&msg, "id = ? AND conversation_id = ?", req.MessageID, convId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}

	// Forward-only guard: the update is a no-op when the watermark is
	// already past this message.
	database.DB.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND last_read_seq < ?", convId, userId, msg.Seq).
		Update("last_read_seq", msg.Seq)

	member, err := getMembership(convId, userId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update watermark"})
		return
	}

	if database.Redis != nil {
		database.CacheInvalidate(database.ConversationListCacheKey(userId))
	}

	broadcastToUser(userId, ws.Event{
		Type:           ws.EventReadMarked,
		ConversationID: convId,
		Data:           gin.H{"lastReadSeq": member.LastReadSeq},
	})

	c.JSON(http.StatusOK, gin.H{"membership": member})
}

// MuteConversation sets or clears the caller's muted_until. Muting
// suppresses notifications, not delivery.
func MuteConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	var req struct {
		Until *time.Time `json:"until"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Until != nil && req.Until.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "until must be in the future"})
		return
	}

	if _, err := getMembership(convId, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	database.DB.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convId, userId).
		Update("muted_until", req.Until)

	c.JSON(http.StatusOK, gin.H{"mutedUntil": req.Until})
}

// HideConversation toggles the caller's local list visibility.
func HideConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if _, err := getMembership(convId, userId); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}

	database.DB.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convId, userId).
		Update("is_hidden", req.Hidden)

	if database.Redis != nil {
		database.CacheInvalidate(database.ConversationListCacheKey(userId))
	}

	c.JSON(http.StatusOK, gin.H{"hidden": req.Hidden})
}

// ArchiveConversation flips is_archived. Archived conversations stay
// readable but reject new messages. Owner/admin only.
func ArchiveConversation(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	convId := c.Param("id")

	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	member, err := getMembership(convId, userId)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this conversation"})
		return
	}
	if !member.CanManage() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only owners and admins can archive"})
		return
	}

	database.DB.Model(&models.Conversation{}).
		Where("id = ?", convId).
		Update("is_archived", req.Archived)

	invalidateConversationLists(convId)

	c.JSON(http.StatusOK, gin.H{"archived": req.Archived})
}
