package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/cache"
	"github.com/charlesng35/teamchat/internal/models"
	apperrors "github.com/charlesng35/teamchat/pkg/errors"
	"github.com/charlesng35/teamchat/pkg/logger"
	"github.com/charlesng35/teamchat/pkg/metrics"
)

// MaxMessageLength bounds message content in runes.
const MaxMessageLength = 4000

// ErrSendFailed indicates valid input could not be persisted.
var ErrSendFailed = apperrors.New("MESSAGE_SEND_FAILED", "Message could not be sent, please try again", http.StatusBadGateway)

// AppendMessageInput describes a message for either a conversation or a channel.
// Exactly one of ConversationID and ChannelID must be set.
type AppendMessageInput struct {
	ConversationID string
	ChannelID      string
	AuthorID       string
	Content        string
	AttachmentURL  string
	// Type overrides inference when set.
	Type string
}

// MessageOption customises MessageService behaviour.
type MessageOption func(*MessageService)

// WithMessageCache replaces the message list cache.
func WithMessageCache(c *cache.MemoryCache[[]models.Message]) MessageOption {
	return func(s *MessageService) {
		if c != nil {
			s.lists = c
		}
	}
}

// WithLookupTTL sets how long message lists stay cached.
func WithLookupTTL(ttl time.Duration) MessageOption {
	return func(s *MessageService) {
		if ttl > 0 {
			s.lookupTTL = ttl
		}
	}
}

// WithMessageClock injects a custom clock primarily for testing.
func WithMessageClock(clock func() time.Time) MessageOption {
	return func(s *MessageService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MessageService appends and lists messages for conversations and channels.
type MessageService struct {
	db            *gorm.DB
	conversations *ConversationService
	lists         *cache.MemoryCache[[]models.Message]
	lookupTTL     time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewMessageService constructs a MessageService. conversations is optional; when
// present, appends advance the conversation's last_message_at.
func NewMessageService(db *gorm.DB, conversations *ConversationService, opts ...MessageOption) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}

	svc := &MessageService{
		db:            db,
		conversations: conversations,
		lookupTTL:     cache.DefaultLookupTTL,
		now:           time.Now,
		log:           logger.WithModule("messages"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.lists == nil {
		svc.lists = cache.NewMemoryCache[[]models.Message]("messages", svc.lookupTTL)
	}

	return svc, nil
}

// ListMessages returns every message of the conversation, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	conversationID, err := requireID("conversation id", conversationID)
	if err != nil {
		return nil, err
	}
	return s.list(ensureContext(ctx), "conversation_id", conversationID)
}

// ListChannelMessages returns every message of the channel, oldest first.
func (s *MessageService) ListChannelMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	channelID, err := requireID("channel id", channelID)
	if err != nil {
		return nil, err
	}
	return s.list(ensureContext(ctx), "channel_id", channelID)
}

// Append stores a message in a conversation. It is not idempotent.
func (s *MessageService) Append(ctx context.Context, conversationID, authorID, content string) (*models.Message, error) {
	return s.AppendMessage(ctx, AppendMessageInput{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
	})
}

// AppendToChannel stores a message in a channel.
func (s *MessageService) AppendToChannel(ctx context.Context, channelID, authorID, content string) (*models.Message, error) {
	return s.AppendMessage(ctx, AppendMessageInput{
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
	})
}

// AppendMessage validates and persists input, returning the stored row.
func (s *MessageService) AppendMessage(ctx context.Context, input AppendMessageInput) (*models.Message, error) {
	ctx = ensureContext(ctx)

	authorID, err := requireID("author id", input.AuthorID)
	if err != nil {
		return nil, err
	}
	conversationID := strings.TrimSpace(input.ConversationID)
	channelID := strings.TrimSpace(input.ChannelID)
	if (conversationID == "") == (channelID == "") {
		return nil, validationError("exactly one of conversation id or channel id is required")
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationError("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, validationError("message content exceeds %d characters", MaxMessageLength)
	}

	attachment := strings.TrimSpace(input.AttachmentURL)
	messageType := strings.ToLower(strings.TrimSpace(input.Type))
	if messageType == "" {
		messageType = DetectMessageType(content, attachment)
	}

	message := &models.Message{
		Content:       content,
		Type:          messageType,
		AuthorID:      authorID,
		AttachmentURL: attachment,
		CreatedAt:     s.now().UTC(),
	}
	target, listKey := "conversation", conversationListKey(conversationID)
	if conversationID != "" {
		message.ConversationID = &conversationID
	} else {
		message.ChannelID = &channelID
		target, listKey = "channel", channelListKey(channelID)
	}

	if err := message.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, ErrSendFailed.WithInternal(err)
	}

	s.lists.Invalidate(listKey)
	metrics.MessagesAppended.WithLabelValues(target, message.Type).Inc()

	if conversationID != "" && s.conversations != nil {
		if err := s.conversations.TouchLastMessage(ctx, conversationID, message.CreatedAt); err != nil {
			s.log.Warn("failed to advance conversation activity",
				zap.String("conversation_id", conversationID),
				zap.Int64("message_id", message.ID),
				zap.Error(err),
			)
		}
	}

	return message, nil
}

func (s *MessageService) list(ctx context.Context, column, id string) ([]models.Message, error) {
	key := conversationListKey(id)
	if column == "channel_id" {
		key = channelListKey(id)
	}

	if cached, ok := s.lists.Get(key); ok {
		return cloneMessages(cached), nil
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where(column+" = ?", id).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, storeError("message service: list messages", err)
	}

	s.lists.Put(key, messages, s.lookupTTL)
	return cloneMessages(messages), nil
}

// MergeMessages folds incoming messages, typically delivered out of band, into
// current. Messages are de-duplicated by id with incoming copies winning, and the
// result is ordered by creation time then id.
func MergeMessages(current, incoming []models.Message) []models.Message {
	byID := make(map[int64]int, len(current)+len(incoming))
	merged := make([]models.Message, 0, len(current)+len(incoming))

	for _, batch := range [][]models.Message{current, incoming} {
		for _, message := range batch {
			if idx, exists := byID[message.ID]; exists {
				merged[idx] = message
				continue
			}
			byID[message.ID] = len(merged)
			merged = append(merged, message)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// DetectMessageType infers a type from content. Attachments are images; a fenced
// block is code; a lone http(s) URL is a link; anything else is text.
func DetectMessageType(content, attachmentURL string) string {
	if strings.TrimSpace(attachmentURL) != "" {
		return models.MessageTypeImage
	}

	content = strings.TrimSpace(content)
	if len(content) >= 6 && strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		return models.MessageTypeCode
	}

	if !strings.ContainsAny(content, " \t\n") {
		if u, err := url.Parse(content); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return models.MessageTypeLink
		}
	}

	return models.MessageTypeText
}

func cloneMessages(messages []models.Message) []models.Message {
	if messages == nil {
		return []models.Message{}
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}

func conversationListKey(id string) string {
	return "conversation:" + id
}

func channelListKey(id string) string {
	return "channel:" + id
}
