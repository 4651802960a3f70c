package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/teamchat/internal/auth"
	"github.com/charlesng35/teamchat/internal/middleware"
	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/response"
)

type InviteHandler struct {
	invites    *services.InviteService
	workspaces *services.WorkspaceService
	jwt        *iauth.JWTService
}

func NewInviteHandler(
	invites *services.InviteService,
	workspaces *services.WorkspaceService,
	jwt *iauth.JWTService,
) *InviteHandler {
	return &InviteHandler{
		invites:    invites,
		workspaces: workspaces,
		jwt:        jwt,
	}
}

type createInviteRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"role" validate:"omitempty,workspace_role"`
	Message string `json:"message" validate:"omitempty,max=1000"`
}

type createLinkRequest struct {
	Role          string `json:"role" validate:"omitempty,workspace_role"`
	ExpiresInDays int    `json:"expires_in_days" validate:"omitempty,min=0"`
}

type acceptInviteRequest struct {
	Token       string `json:"token" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Password    string `json:"password" validate:"omitempty,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

type cancelInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

type inviteDTO struct {
	ID            string     `json:"id"`
	Email         string     `json:"email,omitempty"`
	Shareable     bool       `json:"shareable"`
	WorkspaceID   string     `json:"workspace_id"`
	WorkspaceName string     `json:"workspace_name,omitempty"`
	InviterID     string     `json:"inviter_id"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
}

type inviteCreatedResponse struct {
	Invite     inviteDTO `json:"invite"`
	Token      string    `json:"token"`
	Link       string    `json:"link"`
	EmailSent  bool      `json:"email_sent"`
	EmailError string    `json:"email_error,omitempty"`
}

type acceptInviteResponse struct {
	Invite         inviteDTO          `json:"invite"`
	WorkspaceID    string             `json:"workspace_id"`
	Role           string             `json:"role"`
	User           *models.User       `json:"user"`
	AccountCreated bool               `json:"account_created"`
	Token          *iauth.AccessToken `json:"token,omitempty"`
}

// POST /api/workspaces/:id/invites
func (h *InviteHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.Create(requestContext(c), services.CreateInviteInput{
		Email:       req.Email,
		WorkspaceID: workspaceID,
		InviterID:   userID,
		Role:        req.Role,
		Message:     req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := inviteCreatedResponse{
		Invite:    toInviteDTO(result.Invite),
		Token:     result.Token,
		Link:      result.Link,
		EmailSent: result.EmailErr == nil,
	}
	if result.EmailErr != nil {
		payload.EmailError = "invite email could not be delivered; share the link instead"
	}
	response.Success(c, http.StatusCreated, payload)
}

// POST /api/workspaces/:id/invites/link
func (h *InviteHandler) CreateLink(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	var req createLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invites.CreateShareableLink(requestContext(c), services.ShareableLinkInput{
		WorkspaceID:   workspaceID,
		InviterID:     userID,
		Role:          req.Role,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, inviteCreatedResponse{
		Invite: toInviteDTO(result.Invite),
		Token:  result.Token,
		Link:   result.Link,
	})
}

// GET /api/workspaces/:id/invites
func (h *InviteHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	ctx := requestContext(c)
	if _, err := h.workspaces.Get(ctx, workspaceID); err != nil {
		response.Error(c, err)
		return
	}
	role, err := h.workspaces.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !models.CanManageInvites(role) {
		response.Error(c, services.ErrInviteForbidden)
		return
	}

	invites, err := h.invites.ListForWorkspace(ctx, workspaceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]inviteDTO, 0, len(invites))
	for i := range invites {
		items = append(items, toInviteDTO(&invites[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// GET /api/auth/invites/:token
func (h *InviteHandler) Lookup(c *gin.Context) {
	token, ok := pathParam(c, "token")
	if !ok {
		return
	}

	invite, err := h.invites.Lookup(requestContext(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

// POST /api/auth/invites/accept
func (h *InviteHandler) Accept(c *gin.Context) {
	var req acceptInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	sessionUserID := c.GetString(middleware.CtxUserIDKey)
	result, err := h.invites.Accept(requestContext(c), req.Token, services.Acceptor{
		UserID:      sessionUserID,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := acceptInviteResponse{
		Invite:         toInviteDTO(result.Invite),
		WorkspaceID:    result.Member.WorkspaceID,
		Role:           result.Member.Role,
		User:           result.User,
		AccountCreated: result.AccountCreated,
	}
	// Anonymous acceptors are signed in so they can use the workspace straight away.
	if sessionUserID == "" && h.jwt != nil {
		token, err := h.jwt.GenerateAccessToken(result.User.ID, result.User.Email)
		if err != nil {
			response.Error(c, err)
			return
		}
		payload.Token = &token
	}

	status := http.StatusOK
	if result.AccountCreated {
		status = http.StatusCreated
	}
	response.Success(c, status, payload)
}

// DELETE /api/invites/:id
func (h *InviteHandler) CancelByID(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	inviteID, ok := pathParam(c, "id")
	if !ok {
		return
	}

	invite, err := h.invites.CancelByID(requestContext(c), inviteID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

// POST /api/invites/cancel
func (h *InviteHandler) CancelByToken(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req cancelInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.invites.Cancel(requestContext(c), req.Token, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toInviteDTO(invite))
}

func toInviteDTO(invite *models.WorkspaceInvite) inviteDTO {
	dto := inviteDTO{
		ID:          invite.ID,
		Shareable:   invite.IsShareable(),
		WorkspaceID: invite.WorkspaceID,
		InviterID:   invite.InviterID,
		Role:        invite.Role,
		Status:      invite.Status,
		Message:     invite.Message,
		CreatedAt:   invite.CreatedAt,
		ExpiresAt:   invite.ExpiresAt,
		AcceptedAt:  invite.AcceptedAt,
	}
	if !dto.Shareable {
		dto.Email = invite.Email
	}
	if invite.Workspace != nil {
		dto.WorkspaceName = invite.Workspace.Name
	}
	return dto
}
