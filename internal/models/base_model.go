package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Accessors promoted to every model; they let the version service treat the
// five root/version pairs uniformly.

func (m *BaseModel) GetID() string           { return m.ID }
func (m *BaseModel) GetCreatedAt() time.Time { return m.CreatedAt }
func (m *BaseModel) GetUpdatedAt() time.Time { return m.UpdatedAt }
