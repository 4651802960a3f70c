package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/response"
)

// ChannelHandler serves workspace channel messages to workspace members.
type ChannelHandler struct {
	workspaces *services.WorkspaceService
	messages   *services.MessageService
}

func NewChannelHandler(workspaces *services.WorkspaceService, messages *services.MessageService) *ChannelHandler {
	return &ChannelHandler{workspaces: workspaces, messages: messages}
}

// GET /api/channels/:id/messages
func (h *ChannelHandler) ListMessages(c *gin.Context) {
	channel, _, ok := h.memberChannel(c)
	if !ok {
		return
	}

	messages, err := h.messages.ListChannelMessages(requestContext(c), channel.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeMessages(c, messages)
}

// POST /api/channels/:id/messages
func (h *ChannelHandler) PostMessage(c *gin.Context) {
	channel, userID, ok := h.memberChannel(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.messages.AppendMessage(requestContext(c), services.AppendMessageInput{
		ChannelID:     channel.ID,
		AuthorID:      userID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		Type:          req.Type,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}

// memberChannel hides channels of workspaces the caller does not belong to.
func (h *ChannelHandler) memberChannel(c *gin.Context) (*models.Channel, string, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, "", false
	}
	channelID, ok := pathParam(c, "id")
	if !ok {
		return nil, "", false
	}

	ctx := requestContext(c)
	channel, err := h.workspaces.GetChannel(ctx, channelID)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	role, err := h.workspaces.MemberRole(ctx, channel.WorkspaceID, userID)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	if role == "" {
		response.Error(c, services.ErrChannelNotFound)
		return nil, "", false
	}
	return channel, userID, true
}
