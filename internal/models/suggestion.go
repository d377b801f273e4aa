package models

import (
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Suggestion lifecycle states.
const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusAccepted = "accepted"
	SuggestionStatusRejected = "rejected"
	SuggestionStatusExpired  = "expired"
)

// Suggestion item contexts as produced by the assistant.
const (
	SuggestionContextMaterials = "materials"
	SuggestionContext3D        = "3d"
	SuggestionContextWiring    = "wiring"
	SuggestionContextDocument  = "document"
)

// Suggestion item outcomes after reconciliation.
const (
	SuggestionItemPending = "pending"
	SuggestionItemApplied = "applied"
	SuggestionItemFailed  = "failed"
)

// Suggestion is a batch of AI-proposed payloads awaiting a user decision.
// Accepting it drives the version service item by item; the batch is
// deliberately best-effort, never a single transaction.
type Suggestion struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	Prompt    string `gorm:"type:text" json:"prompt,omitempty"`
	Status    string `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedBy string `gorm:"size:64;not null" json:"created_by"`

	Project *Project         `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	Items   []SuggestionItem `gorm:"foreignKey:SuggestionID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// BeforeSave validates suggestion metadata.
func (s *Suggestion) BeforeSave(tx *gorm.DB) error {
	s.ProjectID = strings.TrimSpace(s.ProjectID)
	if s.ProjectID == "" {
		return errors.New("suggestion: project_id is required")
	}
	if s.Status == "" {
		s.Status = SuggestionStatusPending
	}
	s.CreatedBy = strings.TrimSpace(s.CreatedBy)
	if s.CreatedBy == "" {
		return errors.New("suggestion: created_by is required")
	}
	return nil
}

// SuggestionItem is one context-tagged proposed payload inside a batch.
// Error and AppliedVersionID record the per-item reconciliation outcome.
type SuggestionItem struct {
	BaseModel

	SuggestionID     string         `gorm:"type:uuid;not null;index" json:"suggestion_id"`
	Context          string         `gorm:"size:32;not null" json:"context"`
	Payload          datatypes.JSON `json:"payload"`
	Status           string         `gorm:"size:16;not null;default:pending" json:"status"`
	Error            string         `gorm:"type:text" json:"error,omitempty"`
	AppliedVersionID *string        `gorm:"type:uuid" json:"applied_version_id,omitempty"`
}

// BeforeSave validates item metadata.
func (i *SuggestionItem) BeforeSave(tx *gorm.DB) error {
	i.Context = strings.TrimSpace(i.Context)
	if i.Context == "" {
		return errors.New("suggestion item: context is required")
	}
	if i.Status == "" {
		i.Status = SuggestionItemPending
	}
	return nil
}
