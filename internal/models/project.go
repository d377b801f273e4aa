package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Project owns a set of versioned hardware artifacts. Deleting a project is
// the only teardown path: roots, versions and changelog entries cascade away
// with it.
type Project struct {
	BaseModel

	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	OwnerUserID string `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Owner *User `gorm:"foreignKey:OwnerUserID" json:"owner,omitempty"`
}

// BeforeSave validates required project fields.
func (p *Project) BeforeSave(tx *gorm.DB) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("project: name is required")
	}
	p.OwnerUserID = strings.TrimSpace(p.OwnerUserID)
	if p.OwnerUserID == "" {
		return errors.New("project: owner_user_id is required")
	}
	return nil
}
