package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
	"github.com/Dvorinka/Trackeep-sub002/pkg/logger"
	"github.com/Dvorinka/Trackeep-sub002/pkg/secretbox"
)

// vaultBox seals vault secrets at rest. Set via InitVault at boot.
var vaultBox *secretbox.Box

func InitVault(masterKey string) error {
	box, err := secretbox.New(masterKey)
	if err != nil {
		return err
	}
	vaultBox = box
	return nil
}

// ListVaultItems returns items the caller owns plus items shared into
// conversations the caller belongs to. Secret material is never included.
func ListVaultItems(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	sharedWithMe := database.DB.Model(&models.VaultItemShare{}).
		Select("vault_item_shares.vault_item_id").
		Joins("JOIN conversation_members cm ON cm.conversation_id = vault_item_shares.conversation_id AND cm.user_id = ?", userId)

	var items []models.VaultItem
	if err := database.DB.
		Preload("Shares").
		Where("owner_id = ? OR id IN (?)", userId, sharedWithMe).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vault items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateVaultItem stores a sealed secret, optionally linked to a source
// message the caller can read.
func CreateVaultItem(c *gin.Context) {
	userId := c.MustGet("userId").(string)

	var req struct {
		Label           string     `json:"label" binding:"required"`
		Secret          string     `json:"secret" binding:"required"`
		Notes           string     `json:"notes"`
		SourceMessageID *string    `json:"sourceMessageId"`
		AllowReveal     *bool      `json:"allowReveal"`
		ExpiresAt       *time.Time `json:"expiresAt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be in the future"})
		return
	}

	if req.SourceMessageID != nil {
		var msg models.Message
		if err := database.DB.First(&msg, "id = ?", *req.SourceMessageID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source message not found"})
			return
		}
		if _, err := getMembership(msg.ConversationID, userId); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of the source conversation"})
			return
		}
	}

	sealed, err := vaultBox.Seal(req.Secret)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to seal vault secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store secret"})
		return
	}

	allowReveal := true
	if req.AllowReveal != nil {
		allowReveal = *req.AllowReveal
	}

	item := models.VaultItem{
		Label:           req.Label,
		OwnerID:         userId,
		SecretSealed:    sealed,
		Notes:           req.Notes,
		SourceMessageID: req.SourceMessageID,
		AllowReveal:     allowReveal,
		ExpiresAt:       req.ExpiresAt,
	}
	if err := database.DB.Create(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vault item"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// ShareVaultItem grants an item into a conversation. Owner only; the
// grant is one row per target and repeat shares are no-ops.
func ShareVaultItem(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	itemId := c.Param("id")

	var req struct {
		ConversationID string `json:"conversationId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId required"})
		return
	}

	var item models.VaultItem
	if err := database.DB.First(&item, "id = ?", itemId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vault item not found"})
		return
	}
	if item.OwnerID != userId {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can share a vault item"})
		return
	}

	var conv models.Conversation
	if err := database.DB.First(&conv, "id = ?", req.ConversationID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	var share models.VaultItemShare
	database.DB.
		Where("vault_item_id = ? AND conversation_id = ?", itemId, req.ConversationID).
		Attrs(models.VaultItemShare{SharedBy: userId}).
		FirstOrCreate(&share)

	database.DB.Model(&item).Updates(map[string]interface{}{
		"shared":                 true,
		"target_conversation_id": req.ConversationID,
	})
	database.DB.Preload("Shares").First(&item, "id = ?", itemId)

	broadcastToConversation(req.ConversationID, ws.Event{
		Type: ws.EventVaultItemShared,
		Data: gin.H{"item": item},
	})

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// UnshareVaultItem revokes a grant for one conversation. This does not
// delete the item, and it cannot revoke plaintext a recipient already
// revealed and copied.
func UnshareVaultItem(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	itemId := c.Param("id")

	var req struct {
		ConversationID string `json:"conversationId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId required"})
		return
	}

	var item models.VaultItem
	if err := database.DB.First(&item, "id = ?", itemId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vault item not found"})
		return
	}
	if item.OwnerID != userId {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can unshare a vault item"})
		return
	}

	database.DB.
		Where("vault_item_id = ? AND conversation_id = ?", itemId, req.ConversationID).
		Delete(&models.VaultItemShare{})

	var remaining int64
	database.DB.Model(&models.VaultItemShare{}).
		Where("vault_item_id = ?", itemId).
		Count(&remaining)
	if remaining == 0 {
		database.DB.Model(&item).Updates(map[string]interface{}{
			"shared":                 false,
			"target_conversation_id": nil,
		})
	}
	database.DB.Preload("Shares").First(&item, "id = ?", itemId)

	broadcastToConversation(req.ConversationID, ws.Event{
		Type: ws.EventVaultItemUnshared,
		Data: gin.H{"itemId": itemId},
	})

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// RevealVaultItem returns the plaintext secret. Policy: reveal must be
// allowed and unexpired; then ownership OR a share into one of the
// caller's conversations authorizes — alternative paths, not additive.
// Every reveal is audit-logged.
func RevealVaultItem(c *gin.Context) {
	userId := c.MustGet("userId").(string)
	itemId := c.Param("id")

	var item models.VaultItem
	if err := database.DB.First(&item, "id = ?", itemId).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vault item not found"})
		return
	}

	if item.Expired(time.Now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Vault item has expired"})
		return
	}
	if !item.AllowReveal {
		c.JSON(http.StatusForbidden, gin.H{"error": "Reveal is disabled for this item"})
		return
	}

	if item.OwnerID != userId {
		if !item.Shared {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to reveal this item"})
			return
		}
		var grants int64
		database.DB.Model(&models.VaultItemShare{}).
			Joins("JOIN conversation_members cm ON cm.conversation_id = vault_item_shares.conversation_id AND cm.user_id = ?", userId).
			Where("vault_item_shares.vault_item_id = ?", itemId).
			Count(&grants)
		if grants == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to reveal this item"})
			return
		}
	}

	secret, err := vaultBox.Open(item.SecretSealed)
	if err != nil {
		logger.Error().Err(err).Str("item_id", itemId).Msg("Failed to open sealed secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reveal secret"})
		return
	}

	logger.Info().
		Str("user_id", userId).
		Str("item_id", itemId).
		Bool("owner", item.OwnerID == userId).
		Msg("vault item revealed")

	c.JSON(http.StatusOK, gin.H{
		"item_id": itemId,
		"secret":  secret,
	})
}
