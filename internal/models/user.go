package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// User is a registered account. Authentication is deliberately thin: a
// username, a bcrypt hash and a display name used as changelog author.
type User struct {
	BaseModel

	Username     string `gorm:"size:64;not null;uniqueIndex" json:"username"`
	DisplayName  string `gorm:"size:128" json:"display_name,omitempty"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
}

// BeforeSave normalises and validates account fields.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Username == "" {
		return errors.New("user: username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("user: password hash is required")
	}
	return nil
}
