package api

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/app"
	"github.com/charlesng35/teamchat/internal/services"
	"github.com/charlesng35/teamchat/pkg/mail"
)

// Services bundles the domain services the HTTP layer depends on.
type Services struct {
	Users         *services.UserService
	Workspaces    *services.WorkspaceService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Invites       *services.InviteService
}

// NewServices constructs every domain service from the shared database handle
// and configuration.
func NewServices(db *gorm.DB, mailer mail.Mailer, cfg *app.Config) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	workspaces, err := services.NewWorkspaceService(db)
	if err != nil {
		return nil, err
	}
	conversations, err := services.NewConversationService(db, cfg.Cache.Memory.ConversationOptions()...)
	if err != nil {
		return nil, err
	}
	messages, err := services.NewMessageService(db, conversations, cfg.Cache.Memory.MessageOptions()...)
	if err != nil {
		return nil, err
	}
	invites, err := services.NewInviteService(db, mailer, users, workspaces, cfg.Invites.ServiceOptions(cfg.Server.BaseURL)...)
	if err != nil {
		return nil, err
	}

	return &Services{
		Users:         users,
		Workspaces:    workspaces,
		Conversations: conversations,
		Messages:      messages,
		Invites:       invites,
	}, nil
}

func (s *Services) validate() error {
	if s == nil {
		return errors.New("services must be provided")
	}
	missing := ""
	switch {
	case s.Users == nil:
		missing = "user"
	case s.Workspaces == nil:
		missing = "workspace"
	case s.Conversations == nil:
		missing = "conversation"
	case s.Messages == nil:
		missing = "message"
	case s.Invites == nil:
		missing = "invite"
	}
	if missing != "" {
		return fmt.Errorf("%s service must be provided", missing)
	}
	return nil
}
