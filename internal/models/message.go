package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Message types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeCode  = "code"
	MessageTypeLink  = "link"
)

var (
	// ErrMessageLocation indicates a message with neither or both location references.
	ErrMessageLocation = errors.New("message: exactly one of conversation_id or channel_id must be set")
	// ErrMessageType indicates a type outside the supported set.
	ErrMessageType = errors.New("message: unsupported type")
)

// Message belongs to exactly one conversation or one channel. The auto-increment
// ID breaks ties between messages sharing a creation timestamp.
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Type           string    `gorm:"size:16;not null;default:text" json:"type"`
	AuthorID       string    `gorm:"type:uuid;not null;index" json:"author_id"`
	ConversationID *string   `gorm:"type:uuid;index:idx_message_conversation_created,priority:1" json:"conversation_id,omitempty"`
	ChannelID      *string   `gorm:"type:uuid;index:idx_message_channel_created,priority:1" json:"channel_id,omitempty"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_message_conversation_created,priority:2;index:idx_message_channel_created,priority:2" json:"created_at"`
}

// Validate checks the location and type invariants.
func (m *Message) Validate() error {
	hasConversation := m.ConversationID != nil && strings.TrimSpace(*m.ConversationID) != ""
	hasChannel := m.ChannelID != nil && strings.TrimSpace(*m.ChannelID) != ""
	if hasConversation == hasChannel {
		return ErrMessageLocation
	}

	switch m.Type {
	case MessageTypeText, MessageTypeImage, MessageTypeCode, MessageTypeLink:
		return nil
	default:
		return ErrMessageType
	}
}

// BeforeCreate defaults the type and refuses rows that break Validate.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return m.Validate()
}
