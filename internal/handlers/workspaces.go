package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/response"
)

// WorkspaceHandler exposes workspaces, their members and channels.
type WorkspaceHandler struct {
	workspaces *services.WorkspaceService
}

func NewWorkspaceHandler(workspaces *services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces}
}

type createWorkspaceRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	Slug string `json:"slug" validate:"omitempty,max=64"`
}

type createChannelRequest struct {
	Name  string `json:"name" validate:"required,max=80"`
	Topic string `json:"topic" validate:"omitempty,max=250"`
}

type memberDTO struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// POST /api/workspaces
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req createWorkspaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	workspace, err := h.workspaces.Create(requestContext(c), services.CreateWorkspaceInput{
		Name:    req.Name,
		Slug:    req.Slug,
		OwnerID: userID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, workspace)
}

// GET /api/workspaces
func (h *WorkspaceHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	workspaces, err := h.workspaces.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, workspaces, &response.Meta{Total: len(workspaces)})
}

// GET /api/workspaces/:id/members
func (h *WorkspaceHandler) Members(c *gin.Context) {
	workspaceID, ok := h.requireMembership(c)
	if !ok {
		return
	}

	members, err := h.workspaces.ListMembers(requestContext(c), workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]memberDTO, 0, len(members))
	for i := range members {
		items = append(items, toMemberDTO(&members[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// POST /api/workspaces/:id/channels
func (h *WorkspaceHandler) CreateChannel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	var req createChannelRequest
	if !bindAndValidate(c, &req) {
		return
	}

	channel, err := h.workspaces.CreateChannel(requestContext(c), workspaceID, userID, req.Name, req.Topic)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, channel)
}

// GET /api/workspaces/:id/channels
func (h *WorkspaceHandler) ListChannels(c *gin.Context) {
	workspaceID, ok := h.requireMembership(c)
	if !ok {
		return
	}

	channels, err := h.workspaces.ListChannels(requestContext(c), workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, channels, &response.Meta{Total: len(channels)})
}

func (h *WorkspaceHandler) requireMembership(c *gin.Context) (string, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return "", false
	}
	workspaceID, ok := pathParam(c, "id")
	if !ok {
		return "", false
	}

	ctx := requestContext(c)
	if _, err := h.workspaces.Get(ctx, workspaceID); err != nil {
		response.Error(c, err)
		return "", false
	}
	if _, err := h.workspaces.RequireMember(ctx, workspaceID, userID); err != nil {
		response.Error(c, err)
		return "", false
	}
	return workspaceID, true
}

func toMemberDTO(member *models.WorkspaceMember) memberDTO {
	dto := memberDTO{
		UserID:   member.UserID,
		Role:     member.Role,
		JoinedAt: member.JoinedAt.UTC(),
	}
	if member.User != nil {
		dto.Email = member.User.Email
		dto.DisplayName = member.User.DisplayName
	}
	return dto
}
