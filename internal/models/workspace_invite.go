package models

import "time"

// Invite statuses. Pending is the only non-terminal status.
const (
	InviteStatusPending   = "pending"
	InviteStatusAccepted  = "accepted"
	InviteStatusExpired   = "expired"
	InviteStatusCancelled = "cancelled"
)

// ShareableInviteEmail marks an invite that any accepting account matches.
const ShareableInviteEmail = "*"

// WorkspaceInvite is a time-bounded, tokenized offer of workspace membership.
// Only the sha256 of the token is stored. PendingKey is set only while a
// targeted invite is pending; its unique index allows one pending invite per
// email and workspace.
type WorkspaceInvite struct {
	BaseModel

	Email       string     `gorm:"not null;index:idx_invite_email_workspace,priority:1" json:"email"`
	WorkspaceID string     `gorm:"type:uuid;not null;index:idx_invite_email_workspace,priority:2" json:"workspace_id"`
	InviterID   string     `gorm:"type:uuid;not null" json:"inviter_id"`
	TokenHash   string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Role        string     `gorm:"not null;default:member" json:"role"`
	Status      string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	Message     string     `json:"message,omitempty"`
	ExpiresAt   time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *string    `gorm:"type:uuid" json:"accepted_by,omitempty"`
	PendingKey  *string    `gorm:"size:512;uniqueIndex" json:"-"`

	Workspace *Workspace `gorm:"constraint:OnDelete:CASCADE" json:"workspace,omitempty"`
}

// InvitePendingKey identifies the (email, workspace) slot a pending targeted invite occupies.
func InvitePendingKey(email, workspaceID string) string {
	return email + "|" + workspaceID
}

// IsShareable reports whether the invite is a link rather than targeted at an email.
func (i *WorkspaceInvite) IsShareable() bool {
	return i.Email == ShareableInviteEmail
}
