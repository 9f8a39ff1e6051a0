package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Dvorinka/Trackeep-sub002/internal/handlers"
	"github.com/Dvorinka/Trackeep-sub002/internal/middleware"
)

// RegisterMessagingRoutes mounts the messaging surface: conversations,
// messages, reactions, suggestions and the sensitive-content gate.
func RegisterMessagingRoutes(r gin.IRouter) {
	m := r.Group("/messaging")
	m.Use(middleware.AuthMiddleware())
	{
		m.GET("/conversations", handlers.ListConversations)
		m.POST("/conversations", handlers.CreateConversation)
		m.GET("/conversations/:id", handlers.GetConversation)
		m.POST("/conversations/:id/read", handlers.MarkConversationRead)
		m.POST("/conversations/:id/mute", handlers.MuteConversation)
		m.POST("/conversations/:id/hide", handlers.HideConversation)
		m.POST("/conversations/:id/archive", handlers.ArchiveConversation)

		m.GET("/conversations/:id/messages", handlers.ListMessages)
		m.POST("/conversations/:id/messages", middleware.MessageRateLimit(), handlers.SendMessage)

		m.PATCH("/messages/:id", handlers.EditMessage)
		m.DELETE("/messages/:id", handlers.DeleteMessage)
		m.POST("/messages/search", handlers.SearchMessages)
		m.POST("/messages/:id/reveal-sensitive", middleware.RevealRateLimit(), handlers.RevealSensitive)

		m.POST("/messages/:id/reactions", handlers.AddReaction)
		m.DELETE("/messages/:id/reactions/:emoji", handlers.RemoveReaction)

		m.GET("/messages/:id/suggestions", handlers.ListSuggestions)
		m.POST("/messages/:id/suggestions/:sid/accept", handlers.AcceptSuggestion)
		m.POST("/messages/:id/suggestions/:sid/dismiss", handlers.DismissSuggestion)
	}
}

// RegisterVaultRoutes mounts the password vault under the messaging base
// path; vault items piggyback on the conversation primitive for sharing.
func RegisterVaultRoutes(r gin.IRouter) {
	v := r.Group("/messaging/password-vault")
	v.Use(middleware.AuthMiddleware())
	{
		v.GET("/items", handlers.ListVaultItems)
		v.POST("/items", handlers.CreateVaultItem)
		v.POST("/items/:id/share", handlers.ShareVaultItem)
		v.POST("/items/:id/unshare", handlers.UnshareVaultItem)
		v.POST("/items/:id/reveal", middleware.RevealRateLimit(), handlers.RevealVaultItem)
	}
}
