package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/models"
	"github.com/charlesng35/teamchat/pkg/crypto"
	apperrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/metrics"
)

// MinPasswordLength is enforced when accounts are created.
const MinPasswordLength = 8

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrEmailTaken signals an account already uses the email address.
	ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", http.StatusConflict)
	// ErrUserInactive indicates a deactivated account attempted to sign in.
	ErrUserInactive = apperrors.New("USER_INACTIVE", "Account is disabled", http.StatusForbidden)
)

// AccountInput carries the fields needed to create or verify a local account.
type AccountInput struct {
	Email       string
	Password    string
	DisplayName string
}

// UserService is the local account directory.
type UserService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, now: time.Now}, nil
}

// Register provisions a new account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, input AccountInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, validationError("email is required")
	}
	if utf8.RuneCountInString(input.Password) < MinPasswordLength {
		return nil, validationError("password must be at least %d characters", MinPasswordLength)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, "user service: hash password")
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = email
	}

	user := &models.User{
		Email:       email,
		DisplayName: displayName,
		Password:    hashed,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, storeError("user service: create user", err)
	}

	return user, nil
}

// Authenticate verifies credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.verify(ctx, email, password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, storeError("user service: record login", err)
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError("user service: get user", err)
	}
	return &user, nil
}

// FindByEmail resolves an account by email, case-insensitively.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return nil, validationError("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError("user service: find user", err)
	}
	return &user, nil
}

// EnsureAccount returns the account for input.Email, creating it when absent. An
// existing account must match input.Password. created reports whether a new
// account was provisioned.
func (s *UserService) EnsureAccount(ctx context.Context, input AccountInput) (user *models.User, created bool, err error) {
	ctx = ensureContext(ctx)

	user, err = s.verify(ctx, input.Email, input.Password)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = s.Register(ctx, input)
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent registration.
		user, err = s.verify(ctx, input.Email, input.Password)
		return user, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// verify returns ErrUserNotFound for an unknown email so callers can decide
// whether to provision. Wrong passwords yield ErrInvalidCredentials.
func (s *UserService) verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}
