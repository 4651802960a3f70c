package models

// Channel is a named many-party message location inside a workspace.
type Channel struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;uniqueIndex:idx_channel_workspace_name,priority:1" json:"workspace_id"`
	Name        string `gorm:"not null;uniqueIndex:idx_channel_workspace_name,priority:2" json:"name"`
	Topic       string `json:"topic"`

	Workspace *Workspace `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
