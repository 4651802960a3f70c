package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/handlers"
)

type workspaceRouteDeps struct {
	Workspaces *handlers.WorkspaceHandler
	Invites    *handlers.InviteHandler
	Channels   *handlers.ChannelHandler
}

func registerWorkspaceRoutes(api *gin.RouterGroup, deps workspaceRouteDeps) {
	workspaces := api.Group("/workspaces")
	{
		workspaces.POST("", deps.Workspaces.Create)
		workspaces.GET("", deps.Workspaces.List)
		workspaces.GET("/:id/members", deps.Workspaces.Members)
		workspaces.POST("/:id/channels", deps.Workspaces.CreateChannel)
		workspaces.GET("/:id/channels", deps.Workspaces.ListChannels)
		workspaces.POST("/:id/invites", deps.Invites.Create)
		workspaces.POST("/:id/invites/link", deps.Invites.CreateLink)
		workspaces.GET("/:id/invites", deps.Invites.List)
	}

	invites := api.Group("/invites")
	{
		invites.DELETE("/:id", deps.Invites.CancelByID)
		invites.POST("/cancel", deps.Invites.CancelByToken)
	}

	channels := api.Group("/channels")
	{
		channels.GET("/:id/messages", deps.Channels.ListMessages)
		channels.POST("/:id/messages", deps.Channels.PostMessage)
	}
}
