package models

import "gorm.io/datatypes"

// Requirement is the root identity of a requirement document.
type Requirement struct {
	BaseModel

	ProjectID        string  `gorm:"type:uuid;not null;index" json:"project_id"`
	CurrentVersionID *string `gorm:"type:uuid" json:"current_version_id"`

	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
}

func (r *Requirement) GetProjectID() string           { return r.ProjectID }
func (r *Requirement) GetCurrentVersionID() *string   { return r.CurrentVersionID }
func (r *Requirement) SetCurrentVersionID(id *string) { r.CurrentVersionID = id }
func (r *Requirement) Kind() EntityKind               { return KindRequirement }

// RequirementVersion stores one immutable revision of requirement details.
type RequirementVersion struct {
	BaseModel

	RequirementID string         `gorm:"type:uuid;not null;uniqueIndex:idx_requirement_versions_number,priority:1" json:"requirement_id"`
	VersionNumber int            `gorm:"not null;uniqueIndex:idx_requirement_versions_number,priority:2" json:"version_number"`
	CreatedBy     string         `gorm:"size:64;not null" json:"created_by"`
	Payload       datatypes.JSON `json:"payload"`

	Requirement *Requirement `gorm:"foreignKey:RequirementID;constraint:OnDelete:CASCADE" json:"requirement,omitempty"`
}

func (v *RequirementVersion) GetRootID() string          { return v.RequirementID }
func (v *RequirementVersion) GetVersionNumber() int      { return v.VersionNumber }
func (v *RequirementVersion) GetPayload() datatypes.JSON { return v.Payload }
func (v *RequirementVersion) GetCreatedBy() string       { return v.CreatedBy }
