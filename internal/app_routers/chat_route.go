package approuters

import (
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/auth"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/configuration"
	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/api/conversations")
	chatRoute.Use(auth.Middleware(container.Config.Auth.JwtSecret))
	{
		chatRoute.POST("", container.ChatHandler.CreateDirect)
		chatRoute.POST("/group", container.ChatHandler.CreateGroup)
		chatRoute.GET("", container.ChatHandler.GetInbox)
		chatRoute.GET("/unseen-count", container.ChatHandler.GetUnseenCount)
		chatRoute.GET("/:conversationId/messages", container.ChatHandler.GetConversationMessages)
		chatRoute.POST("/:conversationId/messages", container.ChatHandler.SendMessage)
		chatRoute.POST("/:conversationId/seen", container.ChatHandler.MarkSeen)
		chatRoute.PUT("/:conversationId/members", container.ChatHandler.AddMembers)
		chatRoute.PUT("/:conversationId/listing", container.ChatHandler.ReassignListing)
		chatRoute.PATCH("/:conversationId/delete", container.ChatHandler.DeleteConversation)
	}
}
