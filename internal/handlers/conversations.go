package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/response"
)

// ConversationHandler serves direct conversations and their messages.
type ConversationHandler struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	users         *services.UserService
}

func NewConversationHandler(
	conversations *services.ConversationService,
	messages *services.MessageService,
	users *services.UserService,
) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages, users: users}
}

type openConversationRequest struct {
	PeerID    string `json:"peer_id" validate:"required_without=PeerEmail"`
	PeerEmail string `json:"peer_email" validate:"omitempty,email"`
}

type postMessageRequest struct {
	Content       string `json:"content" validate:"required"`
	AttachmentURL string `json:"attachment_url" validate:"omitempty,url"`
	Type          string `json:"type" validate:"omitempty,oneof=text image code link"`
}

type conversationDTO struct {
	ID            string     `json:"id"`
	PeerID        string     `json:"peer_id"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// POST /api/conversations
func (h *ConversationHandler) Open(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req openConversationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	var (
		peer *models.User
		err  error
	)
	if peerID := strings.TrimSpace(req.PeerID); peerID != "" {
		peer, err = h.users.GetByID(ctx, peerID)
	} else {
		peer, err = h.users.FindByEmail(ctx, req.PeerEmail)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	conversation, err := h.conversations.GetOrCreate(ctx, userID, peer.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toConversationDTO(conversation, userID))
}

// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conversations, err := h.conversations.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]conversationDTO, 0, len(conversations))
	for i := range conversations {
		items = append(items, toConversationDTO(&conversations[i], userID))
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// GET /api/conversations/:id/messages
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversation, _, ok := h.participantConversation(c)
	if !ok {
		return
	}

	messages, err := h.messages.ListMessages(requestContext(c), conversation.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeMessages(c, messages)
}

// POST /api/conversations/:id/messages
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversation, userID, ok := h.participantConversation(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.messages.AppendMessage(requestContext(c), services.AppendMessageInput{
		ConversationID: conversation.ID,
		AuthorID:       userID,
		Content:        req.Content,
		AttachmentURL:  req.AttachmentURL,
		Type:           req.Type,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}

// participantConversation loads the path conversation. Non-participants see 404
// so conversation ids cannot be probed.
func (h *ConversationHandler) participantConversation(c *gin.Context) (*models.Conversation, string, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, "", false
	}
	conversationID, ok := pathParam(c, "id")
	if !ok {
		return nil, "", false
	}

	conversation, err := h.conversations.Get(requestContext(c), conversationID)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	if !conversation.HasParticipant(userID) {
		response.Error(c, services.ErrConversationNotFound)
		return nil, "", false
	}
	return conversation, userID, true
}

func writeMessages(c *gin.Context, messages []models.Message) {
	meta := &response.Meta{Total: len(messages)}
	if n := len(messages); n > 0 {
		meta.Cursor = messages[n-1].ID
	}
	response.SuccessWithMeta(c, http.StatusOK, messages, meta)
}

func toConversationDTO(conversation *models.Conversation, viewerID string) conversationDTO {
	return conversationDTO{
		ID:            conversation.ID,
		PeerID:        conversation.Peer(viewerID),
		LastMessageAt: conversation.LastMessageAt,
		CreatedAt:     conversation.CreatedAt,
	}
}
