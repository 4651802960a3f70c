package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/pkg/crypto"
	apperrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/logger"
	"github.com/charlesng35/teamchat/pkg/mail"
	"github.com/charlesng35/teamchat/pkg/metrics"
	"github.com/charlesng35/teamchat/pkg/validator"
)

const (
	defaultInviteExpiry     = 7 * 24 * time.Hour
	defaultInviteTokenBytes = 32
	defaultLinkExpiryDays   = 7
	defaultLinkMaxDays      = 30
)

var (
	// ErrInviteForbidden indicates the actor lacks the workspace role the operation requires.
	ErrInviteForbidden = apperrors.New("INVITE_FORBIDDEN", "You are not allowed to manage invites for this workspace", http.StatusForbidden)
	// ErrInvitePending signals a pending invite already exists for the email and workspace.
	ErrInvitePending = apperrors.New("INVITE_PENDING", "A pending invite already exists for this email", http.StatusConflict)
	// ErrInviteNotFound indicates no invite matches the provided token or id.
	ErrInviteNotFound = apperrors.New("INVITE_NOT_FOUND", "Invite not found", http.StatusNotFound)
	// ErrInviteExpired indicates the invite's expiry has passed.
	ErrInviteExpired = apperrors.New("INVITE_EXPIRED", "Invite has expired", http.StatusGone)
	// ErrInviteAlreadyAccepted signals the invite has already been accepted.
	ErrInviteAlreadyAccepted = apperrors.New("INVITE_ALREADY_ACCEPTED", "Invite has already been accepted", http.StatusConflict)
	// ErrInviteCancelled signals the invite was cancelled.
	ErrInviteCancelled = apperrors.New("INVITE_CANCELLED", "Invite has been cancelled", http.StatusConflict)
	// ErrInviteEmailMismatch indicates the accepting account is not the invited address.
	ErrInviteEmailMismatch = apperrors.New("INVITE_EMAIL_MISMATCH", "This invite was sent to a different email address", http.StatusForbidden)
)

// IsInviteStateError reports whether err is one of the invalid-state invite errors.
func IsInviteStateError(err error) bool {
	return errors.Is(err, ErrInviteAlreadyAccepted) ||
		errors.Is(err, ErrInviteExpired) ||
		errors.Is(err, ErrInviteCancelled)
}

// CreateInviteInput describes a targeted invite.
type CreateInviteInput struct {
	Email       string
	WorkspaceID string
	InviterID   string
	Role        string
	Message     string
}

// ShareableLinkInput describes an invite any accepting account matches.
type ShareableLinkInput struct {
	WorkspaceID   string
	InviterID     string
	Role          string
	ExpiresInDays int
}

// InviteResult is returned by invite creation. Token is only ever available here.
// EmailErr reports a delivery failure; the invite remains valid regardless.
type InviteResult struct {
	Invite   *models.WorkspaceInvite
	Token    string
	Link     string
	EmailErr error
}

// Acceptor identifies who is accepting. A non-empty UserID (an authenticated
// session) wins; otherwise Email and Password sign in or create the account.
type Acceptor struct {
	UserID      string
	Email       string
	Password    string
	DisplayName string
}

// AcceptResult describes a successful acceptance.
type AcceptResult struct {
	Invite         *models.WorkspaceInvite
	Member         *models.WorkspaceMember
	User           *models.User
	AccountCreated bool
}

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to create invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteExpiry overrides the targeted invite lifetime.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteTokenSize adjusts the random token length in bytes.
func WithInviteTokenSize(size int) InviteOption {
	return func(s *InviteService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithLinkMaxDays caps the lifetime of shareable links.
func WithLinkMaxDays(days int) InviteOption {
	return func(s *InviteService) {
		if days > 0 {
			s.linkMaxDays = days
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService issues, resolves, accepts and cancels workspace invites.
type InviteService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	users       *UserService
	workspaces  *WorkspaceService
	baseURL     string
	expiry      time.Duration
	tokenLength int
	linkMaxDays int
	now         func() time.Time
	log         *zap.Logger
}

// NewInviteService constructs an InviteService with the provided dependencies. mailer may be nil.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, users *UserService, workspaces *WorkspaceService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if users == nil {
		return nil, errors.New("invite service: user service is required")
	}
	if workspaces == nil {
		return nil, errors.New("invite service: workspace service is required")
	}

	service := &InviteService{
		db:          db,
		mailer:      mailer,
		users:       users,
		workspaces:  workspaces,
		expiry:      defaultInviteExpiry,
		tokenLength: defaultInviteTokenBytes,
		linkMaxDays: defaultLinkMaxDays,
		now:         time.Now,
		log:         logger.WithModule("invites"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IsExpired reports whether a pending invite has reached its expiry at now.
func IsExpired(invite *models.WorkspaceInvite, now time.Time) bool {
	return invite != nil &&
		invite.Status == models.InviteStatusPending &&
		!invite.ExpiresAt.After(now)
}

// Create issues a targeted invite and emails it.
func (s *InviteService) Create(ctx context.Context, input CreateInviteInput) (*InviteResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" || email == models.ShareableInviteEmail || validator.ValidateVar(email, "email") != nil {
		return nil, validationError("a valid email address is required")
	}
	role, err := inviteRole(input.Role)
	if err != nil {
		return nil, err
	}

	workspace, err := s.workspaces.Get(ctx, input.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeInviter(ctx, workspace.ID, input.InviterID, role); err != nil {
		return nil, err
	}
	if err := s.ensureNoPending(ctx, email, workspace.ID); err != nil {
		return nil, err
	}

	pendingKey := models.InvitePendingKey(email, workspace.ID)
	now := s.now().UTC()
	invite, token, err := s.issue(ctx, &models.WorkspaceInvite{
		BaseModel:   models.BaseModel{CreatedAt: now},
		Email:       email,
		WorkspaceID: workspace.ID,
		InviterID:   strings.TrimSpace(input.InviterID),
		Role:        role,
		Message:     strings.TrimSpace(input.Message),
		ExpiresAt:   now.Add(s.expiry),
		PendingKey:  &pendingKey,
	})
	if err != nil {
		return nil, err
	}

	result := &InviteResult{Invite: invite, Token: token, Link: s.inviteLink(token)}
	result.EmailErr = s.sendInviteEmail(ctx, workspace, invite, result.Link)
	return result, nil
}

// CreateShareableLink issues an invite that anyone holding the token may accept.
// Links skip the pending-duplicate check and send no email.
func (s *InviteService) CreateShareableLink(ctx context.Context, input ShareableLinkInput) (*InviteResult, error) {
	ctx = ensureContext(ctx)

	role, err := inviteRole(input.Role)
	if err != nil {
		return nil, err
	}

	days := input.ExpiresInDays
	if days <= 0 {
		days = defaultLinkExpiryDays
	}
	if days > s.linkMaxDays {
		days = s.linkMaxDays
	}

	workspace, err := s.workspaces.Get(ctx, input.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeInviter(ctx, workspace.ID, input.InviterID, role); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	invite, token, err := s.issue(ctx, &models.WorkspaceInvite{
		BaseModel:   models.BaseModel{CreatedAt: now},
		Email:       models.ShareableInviteEmail,
		WorkspaceID: workspace.ID,
		InviterID:   strings.TrimSpace(input.InviterID),
		Role:        role,
		ExpiresAt:   now.AddDate(0, 0, days),
	})
	if err != nil {
		return nil, err
	}

	return &InviteResult{Invite: invite, Token: token, Link: s.inviteLink(token)}, nil
}

// Lookup resolves an invite by token, persisting a due expiry first. Expired
// invites are returned together with ErrInviteExpired.
func (s *InviteService) Lookup(ctx context.Context, token string) (*models.WorkspaceInvite, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.WorkspaceInvite
	err := s.db.WithContext(ctx).
		Preload("Workspace").
		Take(&invite, "token_hash = ?", crypto.HashToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, storeError("invite service: find invite", err)
	}

	if err := s.expireIfDue(ctx, &invite); err != nil {
		return nil, err
	}
	if invite.Status == models.InviteStatusExpired {
		return &invite, ErrInviteExpired
	}
	return &invite, nil
}

// Accept redeems the invite for the acceptor, joining them to the workspace.
func (s *InviteService) Accept(ctx context.Context, token string, acceptor Acceptor) (*AcceptResult, error) {
	ctx = ensureContext(ctx)

	invite, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := inviteStateError(invite.Status); err != nil {
		return nil, err
	}

	user, email, err := s.resolveAcceptor(ctx, acceptor)
	if err != nil {
		return nil, err
	}
	if !invite.IsShareable() && invite.Email != email {
		metrics.InviteEvents.WithLabelValues("rejected").Inc()
		return nil, ErrInviteEmailMismatch
	}

	created := false
	if user != nil {
		role, err := s.workspaces.MemberRole(ctx, invite.WorkspaceID, user.ID)
		if err != nil {
			return nil, err
		}
		if role != "" {
			return nil, ErrAlreadyMember
		}
	} else {
		user, created, err = s.users.EnsureAccount(ctx, AccountInput{
			Email:       email,
			Password:    acceptor.Password,
			DisplayName: acceptor.DisplayName,
		})
		if err != nil {
			return nil, err
		}
	}

	member, err := s.workspaces.AddMember(ctx, invite.WorkspaceID, user.ID, invite.Role)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.WorkspaceInvite{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(map[string]any{
			"status":      models.InviteStatusAccepted,
			"accepted_at": now,
			"accepted_by": user.ID,
			"pending_key": nil,
		})
	if result.Error != nil || result.RowsAffected == 0 {
		s.log.Warn("membership created but invite not marked accepted",
			zap.String("invite_id", invite.ID),
			zap.String("workspace_id", invite.WorkspaceID),
			zap.String("user_id", user.ID),
			zap.Int64("rows_affected", result.RowsAffected),
			zap.Error(result.Error),
		)
	} else {
		invite.Status = models.InviteStatusAccepted
		invite.AcceptedAt = &now
		invite.AcceptedBy = &user.ID
		invite.PendingKey = nil
	}

	metrics.InviteEvents.WithLabelValues("accepted").Inc()
	return &AcceptResult{Invite: invite, Member: member, User: user, AccountCreated: created}, nil
}

// Cancel withdraws a pending invite identified by token.
func (s *InviteService) Cancel(ctx context.Context, token, actingUserID string) (*models.WorkspaceInvite, error) {
	ctx = ensureContext(ctx)

	invite, err := s.Lookup(ctx, token)
	if err != nil && !errors.Is(err, ErrInviteExpired) {
		return nil, err
	}
	return s.cancel(ctx, invite, actingUserID)
}

// CancelByID withdraws a pending invite identified by its id, for admin listings.
func (s *InviteService) CancelByID(ctx context.Context, inviteID, actingUserID string) (*models.WorkspaceInvite, error) {
	ctx = ensureContext(ctx)

	var invite models.WorkspaceInvite
	err := s.db.WithContext(ctx).Take(&invite, "id = ?", strings.TrimSpace(inviteID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, storeError("invite service: find invite", err)
	}
	if err := s.expireIfDue(ctx, &invite); err != nil {
		return nil, err
	}
	return s.cancel(ctx, &invite, actingUserID)
}

// ListForWorkspace returns the workspace's invites, newest first, with due expiries applied.
// Invites created at the same instant are ordered by id, which is stable but arbitrary.
func (s *InviteService) ListForWorkspace(ctx context.Context, workspaceID string) ([]models.WorkspaceInvite, error) {
	ctx = ensureContext(ctx)

	var invites []models.WorkspaceInvite
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&invites).Error
	if err != nil {
		return nil, storeError("invite service: list invites", err)
	}

	for i := range invites {
		if err := s.expireIfDue(ctx, &invites[i]); err != nil {
			return nil, err
		}
	}
	return invites, nil
}

// ExpireStale moves every due pending invite to expired and returns how many changed.
func (s *InviteService) ExpireStale(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.WorkspaceInvite{}).
		Where("status = ? AND expires_at <= ?", models.InviteStatusPending, s.now().UTC()).
		Updates(settledColumns(models.InviteStatusExpired))
	if result.Error != nil {
		return 0, storeError("invite service: expire stale invites", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.InviteEvents.WithLabelValues("expired").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// expireIfDue persists the pending to expired transition when IsExpired holds.
// It is the only place a lazy expiry is written.
func (s *InviteService) expireIfDue(ctx context.Context, invite *models.WorkspaceInvite) error {
	if !IsExpired(invite, s.now()) {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.WorkspaceInvite{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(settledColumns(models.InviteStatusExpired))
	if result.Error != nil {
		return storeError("invite service: expire invite", result.Error)
	}

	if result.RowsAffected == 0 {
		// Another writer settled it first; report what is stored.
		status, err := s.storedStatus(ctx, invite.ID)
		if err != nil {
			return err
		}
		if status != models.InviteStatusPending {
			invite.Status = status
			return nil
		}
	}

	invite.Status = models.InviteStatusExpired
	invite.PendingKey = nil
	metrics.InviteEvents.WithLabelValues("expired").Inc()
	return nil
}

func (s *InviteService) cancel(ctx context.Context, invite *models.WorkspaceInvite, actingUserID string) (*models.WorkspaceInvite, error) {
	actingUserID = strings.TrimSpace(actingUserID)
	if actingUserID == "" {
		return nil, ErrInviteForbidden
	}
	if invite.InviterID != actingUserID {
		role, err := s.workspaces.MemberRole(ctx, invite.WorkspaceID, actingUserID)
		if err != nil {
			return nil, err
		}
		if !models.CanManageInvites(role) {
			return nil, ErrInviteForbidden
		}
	}

	if err := inviteStateError(invite.Status); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&models.WorkspaceInvite{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(settledColumns(models.InviteStatusCancelled))
	if result.Error != nil {
		return nil, storeError("invite service: cancel invite", result.Error)
	}
	if result.RowsAffected == 0 {
		status, err := s.storedStatus(ctx, invite.ID)
		if err != nil {
			return nil, err
		}
		if err := inviteStateError(status); err != nil {
			return nil, err
		}
	}

	invite.Status = models.InviteStatusCancelled
	invite.PendingKey = nil
	metrics.InviteEvents.WithLabelValues("cancelled").Inc()
	return invite, nil
}

// settledColumns moves an invite out of pending and releases its pending slot.
func settledColumns(status string) map[string]any {
	return map[string]any{"status": status, "pending_key": nil}
}

func (s *InviteService) storedStatus(ctx context.Context, id string) (string, error) {
	var stored models.WorkspaceInvite
	if err := s.db.WithContext(ctx).Select("status").Take(&stored, "id = ?", id).Error; err != nil {
		return "", storeError("invite service: reload invite", err)
	}
	return stored.Status, nil
}

func (s *InviteService) authorizeInviter(ctx context.Context, workspaceID, inviterID, role string) error {
	inviterID = strings.TrimSpace(inviterID)
	if inviterID == "" {
		return ErrInviteForbidden
	}

	inviterRole, err := s.workspaces.MemberRole(ctx, workspaceID, inviterID)
	if err != nil {
		return err
	}
	if !models.CanManageInvites(inviterRole) {
		return ErrInviteForbidden
	}
	if role == models.WorkspaceRoleOwner && inviterRole != models.WorkspaceRoleOwner {
		return ErrInviteForbidden
	}
	return nil
}

func (s *InviteService) ensureNoPending(ctx context.Context, email, workspaceID string) error {
	var pending []models.WorkspaceInvite
	err := s.db.WithContext(ctx).
		Where("email = ? AND workspace_id = ? AND status = ?", email, workspaceID, models.InviteStatusPending).
		Find(&pending).Error
	if err != nil {
		return storeError("invite service: check pending invites", err)
	}

	for i := range pending {
		if err := s.expireIfDue(ctx, &pending[i]); err != nil {
			return err
		}
		if pending[i].Status == models.InviteStatusPending {
			return ErrInvitePending
		}
	}
	return nil
}

func (s *InviteService) issue(ctx context.Context, invite *models.WorkspaceInvite) (*models.WorkspaceInvite, string, error) {
	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, "", apperrors.Wrap(err, "invite service: generate token")
	}

	invite.TokenHash = crypto.HashToken(rawToken)
	invite.Status = models.InviteStatusPending

	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		if invite.PendingKey != nil && isUniqueConstraintError(err) {
			// A concurrent Create claimed the same email and workspace.
			return nil, "", ErrInvitePending
		}
		return nil, "", storeError("invite service: create invite", err)
	}

	metrics.InviteEvents.WithLabelValues("created").Inc()
	return invite, rawToken, nil
}

// resolveAcceptor returns the accepting account, or a nil user when no account
// exists for the supplied email yet. email is always the normalised address.
func (s *InviteService) resolveAcceptor(ctx context.Context, acceptor Acceptor) (*models.User, string, error) {
	if userID := strings.TrimSpace(acceptor.UserID); userID != "" {
		user, err := s.users.GetByID(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", apperrors.ErrUnauthorized
		}
		if err != nil {
			return nil, "", err
		}
		return user, user.Email, nil
	}

	email := normaliseEmail(acceptor.Email)
	if email == "" || acceptor.Password == "" {
		return nil, "", validationError("email and password are required to accept without signing in")
	}

	user, err := s.users.verify(ctx, email, acceptor.Password)
	if errors.Is(err, ErrUserNotFound) {
		return nil, email, nil
	}
	if err != nil {
		return nil, "", err
	}
	return user, email, nil
}

func (s *InviteService) sendInviteEmail(ctx context.Context, workspace *models.Workspace, invite *models.WorkspaceInvite, link string) error {
	if s.mailer == nil {
		return nil
	}

	inviterName := "A teammate"
	var replyTo string
	if inviter, err := s.users.GetByID(ctx, invite.InviterID); err == nil {
		inviterName = inviter.DisplayName
		replyTo = inviter.Email
	}

	message := mail.Message{
		ReplyTo: replyTo,
		To:      []string{invite.Email},
		Subject: fmt.Sprintf("%s invited you to join %s on Teamchat", inviterName, workspace.Name),
		Body:    inviteBody(workspace.Name, inviterName, link, invite.Message),
		Headers: map[string]string{"X-Teamchat-Workspace": workspace.Slug},
	}

	err := s.mailer.Send(ctx, message)
	if err == nil || errors.Is(err, mail.ErrSMTPDisabled) {
		return nil
	}

	s.log.Warn("invite email delivery failed",
		zap.String("invite_id", invite.ID),
		zap.String("workspace_id", invite.WorkspaceID),
		zap.Error(err),
	)
	return fmt.Errorf("invite service: send email: %w", err)
}

func (s *InviteService) inviteLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func inviteBody(workspaceName, inviterName, link, personal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\n%s has invited you to join the %s workspace on Teamchat.\n", inviterName, workspaceName)
	if personal != "" {
		fmt.Fprintf(&b, "\nThey wrote:\n\n    %s\n", strings.ReplaceAll(personal, "\n", "\n    "))
	}
	fmt.Fprintf(&b, "\nUse the following link to accept your invite:\n%s\n\nIf you did not expect this email, you can ignore it.\n", link)
	return b.String()
}

func inviteRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return models.WorkspaceRoleMember, nil
	}
	if !models.IsWorkspaceRole(role) {
		return "", validationError("unsupported invite role %q", role)
	}
	return role, nil
}

func inviteStateError(status string) error {
	switch status {
	case models.InviteStatusPending:
		return nil
	case models.InviteStatusAccepted:
		return ErrInviteAlreadyAccepted
	case models.InviteStatusExpired:
		return ErrInviteExpired
	case models.InviteStatusCancelled:
		return ErrInviteCancelled
	default:
		return apperrors.ErrInternalServer.WithInternal(fmt.Errorf("invite service: unknown invite status %q", status))
	}
}
