package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/handlers"
)

func registerConversationRoutes(api *gin.RouterGroup, handler *handlers.ConversationHandler) {
	if api == nil || handler == nil {
		return
	}

	conversations := api.Group("/conversations")
	conversations.POST("", handler.Open)
	conversations.GET("", handler.List)
	conversations.GET("/:id/messages", handler.ListMessages)
	conversations.POST("/:id/messages", handler.PostMessage)
}
