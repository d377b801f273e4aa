package models

import "gorm.io/datatypes"

// Component is the root identity of a bill-of-materials entry. Its specs
// live in an immutable chain of ComponentVersion rows; CurrentVersionID is
// the only mutable field and is repointed atomically by the version service.
type Component struct {
	BaseModel

	ProjectID        string  `gorm:"type:uuid;not null;index" json:"project_id"`
	CurrentVersionID *string `gorm:"type:uuid" json:"current_version_id"`

	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
}

func (c *Component) GetProjectID() string          { return c.ProjectID }
func (c *Component) GetCurrentVersionID() *string  { return c.CurrentVersionID }
func (c *Component) SetCurrentVersionID(id *string) { c.CurrentVersionID = id }
func (c *Component) Kind() EntityKind              { return KindComponent }

// ComponentVersion stores one immutable revision of a component's specs.
// (component_id, version_number) is unique; conflicting inserts are how
// concurrent writers are detected.
type ComponentVersion struct {
	BaseModel

	ComponentID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_component_versions_number,priority:1" json:"component_id"`
	VersionNumber int            `gorm:"not null;uniqueIndex:idx_component_versions_number,priority:2" json:"version_number"`
	CreatedBy     string         `gorm:"size:64;not null" json:"created_by"`
	Payload       datatypes.JSON `json:"payload"`

	Component *Component `gorm:"foreignKey:ComponentID;constraint:OnDelete:CASCADE" json:"component,omitempty"`
}

func (v *ComponentVersion) GetRootID() string          { return v.ComponentID }
func (v *ComponentVersion) GetVersionNumber() int      { return v.VersionNumber }
func (v *ComponentVersion) GetPayload() datatypes.JSON { return v.Payload }
func (v *ComponentVersion) GetCreatedBy() string       { return v.CreatedBy }
