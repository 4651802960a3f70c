package models

import (
	"strings"
	"time"
)

// Workspace roles, ordered from most to least privileged.
const (
	WorkspaceRoleOwner  = "owner"
	WorkspaceRoleAdmin  = "admin"
	WorkspaceRoleMember = "member"
)

// Workspace groups members, channels and invites.
type Workspace struct {
	BaseModel

	Name    string `gorm:"not null" json:"name"`
	Slug    string `gorm:"uniqueIndex;not null" json:"slug"`
	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`

	Members []WorkspaceMember `gorm:"foreignKey:WorkspaceID" json:"members,omitempty"`
}

// WorkspaceMember joins a user to a workspace. The composite primary key keeps
// at most one membership per (workspace, user).
type WorkspaceMember struct {
	WorkspaceID string    `gorm:"primaryKey;type:uuid" json:"workspace_id"`
	UserID      string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	Role        string    `gorm:"not null;default:member" json:"role"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName pins the join table name used across drivers.
func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

// IsWorkspaceRole reports whether role names one of the workspace roles.
func IsWorkspaceRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case WorkspaceRoleOwner, WorkspaceRoleAdmin, WorkspaceRoleMember:
		return true
	}
	return false
}

// CanManageInvites reports whether role may issue or cancel workspace invites.
func CanManageInvites(role string) bool {
	return role == WorkspaceRoleOwner || role == WorkspaceRoleAdmin
}
