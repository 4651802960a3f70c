package services

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/models"
	apperrors "github.com/charlesng35/teamchat/pkg/errors"
)

var (
	// ErrWorkspaceNotFound indicates the requested workspace does not exist.
	ErrWorkspaceNotFound = apperrors.New("WORKSPACE_NOT_FOUND", "Workspace not found", http.StatusNotFound)
	// ErrWorkspaceSlugTaken signals another workspace already uses the slug.
	ErrWorkspaceSlugTaken = apperrors.New("WORKSPACE_SLUG_TAKEN", "Workspace slug already in use", http.StatusConflict)
	// ErrNotWorkspaceMember indicates the acting user does not belong to the workspace.
	ErrNotWorkspaceMember = apperrors.New("WORKSPACE_FORBIDDEN", "You are not a member of this workspace", http.StatusForbidden)
	// ErrAlreadyMember indicates the user already belongs to the workspace.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "User is already a member of this workspace", http.StatusConflict)
	// ErrChannelNotFound indicates the requested channel does not exist.
	ErrChannelNotFound = apperrors.New("CHANNEL_NOT_FOUND", "Channel not found", http.StatusNotFound)
	// ErrChannelExists signals a channel with the same name exists in the workspace.
	ErrChannelExists = apperrors.New("CHANNEL_EXISTS", "Channel already exists", http.StatusConflict)
)

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// CreateWorkspaceInput captures new workspace metadata.
type CreateWorkspaceInput struct {
	Name    string
	Slug    string
	OwnerID string
}

// WorkspaceService manages workspaces, their memberships and channels.
type WorkspaceService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewWorkspaceService constructs a WorkspaceService instance.
func NewWorkspaceService(db *gorm.DB) (*WorkspaceService, error) {
	if db == nil {
		return nil, errors.New("workspace service: db is required")
	}
	return &WorkspaceService{db: db, now: time.Now}, nil
}

// Create registers a workspace and makes its creator the owner.
func (s *WorkspaceService) Create(ctx context.Context, input CreateWorkspaceInput) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("workspace name is required")
	}
	ownerID, err := requireID("owner id", input.OwnerID)
	if err != nil {
		return nil, err
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, validationError("workspace slug is required")
	}

	workspace := &models.Workspace{Name: name, Slug: slug, OwnerID: ownerID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workspace).Error; err != nil {
			return err
		}
		return tx.Create(&models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      ownerID,
			Role:        models.WorkspaceRoleOwner,
			JoinedAt:    s.now().UTC(),
		}).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrWorkspaceSlugTaken
		}
		return nil, storeError("workspace service: create workspace", err)
	}

	return workspace, nil
}

// Get loads a workspace by id.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*models.Workspace, error) {
	ctx = ensureContext(ctx)

	var workspace models.Workspace
	err := s.db.WithContext(ctx).Take(&workspace, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, storeError("workspace service: get workspace", err)
	}
	return &workspace, nil
}

// ListForUser returns the workspaces userID belongs to, ordered by name.
func (s *WorkspaceService) ListForUser(ctx context.Context, userID string) ([]models.Workspace, error) {
	ctx = ensureContext(ctx)

	var workspaces []models.Workspace
	err := s.db.WithContext(ctx).
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ?", userID).
		Order("workspaces.name ASC").
		Find(&workspaces).Error
	if err != nil {
		return nil, storeError("workspace service: list workspaces", err)
	}
	return workspaces, nil
}

// MemberRole returns userID's role in the workspace, or "" when not a member.
func (s *WorkspaceService) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	ctx = ensureContext(ctx)

	var member models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Take(&member, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", storeError("workspace service: load membership", err)
	}
	return member.Role, nil
}

// RequireMember returns userID's role or ErrNotWorkspaceMember.
func (s *WorkspaceService) RequireMember(ctx context.Context, workspaceID, userID string) (string, error) {
	role, err := s.MemberRole(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", ErrNotWorkspaceMember
	}
	return role, nil
}

// AddMember joins userID to the workspace with role. An existing membership yields ErrAlreadyMember.
func (s *WorkspaceService) AddMember(ctx context.Context, workspaceID, userID, role string) (*models.WorkspaceMember, error) {
	ctx = ensureContext(ctx)

	role = strings.ToLower(strings.TrimSpace(role))
	if !models.IsWorkspaceRole(role) {
		return nil, validationError("unsupported workspace role %q", role)
	}

	member := &models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyMember
		}
		return nil, storeError("workspace service: add member", err)
	}
	return member, nil
}

// ListMembers returns the workspace's members with their accounts, oldest first.
func (s *WorkspaceService) ListMembers(ctx context.Context, workspaceID string) ([]models.WorkspaceMember, error) {
	ctx = ensureContext(ctx)

	var members []models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("workspace_id = ?", workspaceID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, storeError("workspace service: list members", err)
	}
	return members, nil
}

// CreateChannel adds a named channel. Any member may create one.
func (s *WorkspaceService) CreateChannel(ctx context.Context, workspaceID, actorID, name, topic string) (*models.Channel, error) {
	ctx = ensureContext(ctx)

	name = Slugify(name)
	if name == "" {
		return nil, validationError("channel name is required")
	}
	if _, err := s.RequireMember(ctx, workspaceID, actorID); err != nil {
		return nil, err
	}

	channel := &models.Channel{WorkspaceID: workspaceID, Name: name, Topic: strings.TrimSpace(topic)}
	if err := s.db.WithContext(ctx).Create(channel).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrChannelExists
		}
		return nil, storeError("workspace service: create channel", err)
	}
	return channel, nil
}

// GetChannel loads a channel by id.
func (s *WorkspaceService) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	ctx = ensureContext(ctx)

	var channel models.Channel
	err := s.db.WithContext(ctx).Take(&channel, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, storeError("workspace service: get channel", err)
	}
	return &channel, nil
}

// ListChannels returns the workspace's channels ordered by name.
func (s *WorkspaceService) ListChannels(ctx context.Context, workspaceID string) ([]models.Channel, error) {
	ctx = ensureContext(ctx)

	var channels []models.Channel
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("name ASC").
		Find(&channels).Error
	if err != nil {
		return nil, storeError("workspace service: list channels", err)
	}
	return channels, nil
}

// Slugify lower-cases value and collapses runs of other characters into single dashes.
func Slugify(value string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	return strings.Trim(slug, "-")
}
