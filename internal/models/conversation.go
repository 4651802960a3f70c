package models

import "time"

// Conversation is a two-party direct message thread. ParticipantAID is always the
// lexicographically smaller identifier of the pair.
type Conversation struct {
	BaseModel

	ParticipantAID string     `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participant_a_id"`
	ParticipantBID string     `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"participant_b_id"`
	LastMessageAt  *time.Time `gorm:"index" json:"last_message_at"`
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	if c.ParticipantAID == userID {
		return c.ParticipantBID
	}
	return c.ParticipantAID
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantAID == userID || c.ParticipantBID == userID
}
