package models

import "time"

// User is a local account. Email is stored lower-cased and is the login identifier.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `gorm:"not null" json:"-"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
}
