package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/cache"
	"github.com/charlesng35/teamchat/internal/models"
	apperrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/logger"
	"github.com/charlesng35/teamchat/pkg/metrics"
)

// ErrConversationNotFound indicates no conversation matches the identifier.
var ErrConversationNotFound = apperrors.New("CONVERSATION_NOT_FOUND", "Conversation not found", http.StatusNotFound)

// ConversationOption customises ConversationService behaviour.
type ConversationOption func(*ConversationService)

// WithConversationCache replaces the process-local identity cache.
func WithConversationCache(c *cache.MemoryCache[models.Conversation]) ConversationOption {
	return func(s *ConversationService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithIdentityTTL sets how long settled conversations stay cached.
func WithIdentityTTL(ttl time.Duration) ConversationOption {
	return func(s *ConversationService) {
		if ttl > 0 {
			s.identityTTL = ttl
		}
	}
}

// ConversationService resolves two-party conversations, creating them on first contact.
type ConversationService struct {
	db          *gorm.DB
	cache       *cache.MemoryCache[models.Conversation]
	identityTTL time.Duration
	log         *zap.Logger
}

// NewConversationService constructs a ConversationService. Each instance owns its cache.
func NewConversationService(db *gorm.DB, opts ...ConversationOption) (*ConversationService, error) {
	if db == nil {
		return nil, errors.New("conversation service: db is required")
	}

	svc := &ConversationService{
		db:          db,
		identityTTL: cache.DefaultIdentityTTL,
		log:         logger.WithModule("conversations"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cache == nil {
		svc.cache = cache.NewMemoryCache[models.Conversation]("conversations", svc.identityTTL)
	}

	return svc, nil
}

// GetOrCreate returns the single conversation between userA and userB, creating it
// when none exists. Argument order does not matter. A concurrent creator losing the
// unique index race re-reads and returns the winner's row.
func (s *ConversationService) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)

	first, second, err := NormalizePair(userA, userB)
	if err != nil {
		return nil, err
	}

	key := pairCacheKey(first, second)
	if cached, ok := s.cache.Get(key); ok {
		return cloneConversation(cached), nil
	}

	conversation, err := s.findByPair(ctx, first, second)
	if err != nil {
		return nil, storeError("conversation service: find conversation", err)
	}

	if conversation == nil {
		created := &models.Conversation{ParticipantAID: first, ParticipantBID: second}
		createErr := s.db.WithContext(ctx).Create(created).Error
		switch {
		case createErr == nil:
			conversation = created
			metrics.ConversationsCreated.Inc()
		case isUniqueConstraintError(createErr):
			conversation, err = s.findByPair(ctx, first, second)
			if err != nil {
				return nil, storeError("conversation service: reload conversation", err)
			}
			if conversation == nil {
				return nil, storeError("conversation service: resolve concurrent create", createErr)
			}
		default:
			return nil, storeError("conversation service: create conversation", createErr)
		}
	}

	s.remember(conversation)
	return conversation, nil
}

// Get loads a conversation by id.
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)

	id, err := requireID("conversation id", id)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(idCacheKey(id)); ok {
		return cloneConversation(cached), nil
	}

	var conversation models.Conversation
	err = s.db.WithContext(ctx).Take(&conversation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storeError("conversation service: get conversation", err)
	}

	s.remember(&conversation)
	return &conversation, nil
}

// ListForUser returns the user's conversations, most recent activity first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx = ensureContext(ctx)

	userID, err := requireID("user id", userID)
	if err != nil {
		return nil, err
	}

	var conversations []models.Conversation
	err = s.db.WithContext(ctx).
		Where("participant_a_id = ? OR participant_b_id = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id ASC").
		Find(&conversations).Error
	if err != nil {
		return nil, storeError("conversation service: list conversations", err)
	}
	return conversations, nil
}

// TouchLastMessage advances last_message_at to at. Older timestamps are ignored.
func (s *ConversationService) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	ctx = ensureContext(ctx)

	id, err := requireID("conversation id", id)
	if err != nil {
		return err
	}

	at = at.UTC()
	err = s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at).Error
	if err != nil {
		return storeError("conversation service: touch conversation", err)
	}

	s.forget(id)
	return nil
}

func (s *ConversationService) findByPair(ctx context.Context, first, second string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_a_id = ? AND participant_b_id = ?", first, second).
		Take(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (s *ConversationService) remember(conversation *models.Conversation) {
	stored := cloneConversation(*conversation)
	s.cache.Put(pairCacheKey(stored.ParticipantAID, stored.ParticipantBID), *stored, s.identityTTL)
	s.cache.Put(idCacheKey(stored.ID), *stored, s.identityTTL)
}

// cloneConversation copies conversation so callers never share LastMessageAt with the cache.
func cloneConversation(conversation models.Conversation) *models.Conversation {
	if conversation.LastMessageAt != nil {
		at := *conversation.LastMessageAt
		conversation.LastMessageAt = &at
	}
	return &conversation
}

func (s *ConversationService) forget(id string) {
	if cached, ok := s.cache.Get(idCacheKey(id)); ok {
		s.cache.Invalidate(pairCacheKey(cached.ParticipantAID, cached.ParticipantBID))
	}
	s.cache.Invalidate(idCacheKey(id))
}

func pairCacheKey(first, second string) string {
	return "pair:" + pairKey(first, second)
}

func idCacheKey(id string) string {
	return "id:" + id
}
