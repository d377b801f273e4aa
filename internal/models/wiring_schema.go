package models

import "gorm.io/datatypes"

// WiringSchema is the root identity of a project's wiring diagram. Version
// payloads carry the connection graph ({nodes, edges}).
type WiringSchema struct {
	BaseModel

	ProjectID        string  `gorm:"type:uuid;not null;index" json:"project_id"`
	CurrentVersionID *string `gorm:"type:uuid" json:"current_version_id"`

	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
}

func (w *WiringSchema) GetProjectID() string           { return w.ProjectID }
func (w *WiringSchema) GetCurrentVersionID() *string   { return w.CurrentVersionID }
func (w *WiringSchema) SetCurrentVersionID(id *string) { w.CurrentVersionID = id }
func (w *WiringSchema) Kind() EntityKind               { return KindWiringSchema }

// WiringSchemaVersion stores one immutable revision of the wiring graph.
type WiringSchemaVersion struct {
	BaseModel

	WiringSchemaID string         `gorm:"type:uuid;not null;uniqueIndex:idx_wiring_schema_versions_number,priority:1" json:"wiring_schema_id"`
	VersionNumber  int            `gorm:"not null;uniqueIndex:idx_wiring_schema_versions_number,priority:2" json:"version_number"`
	CreatedBy      string         `gorm:"size:64;not null" json:"created_by"`
	Payload        datatypes.JSON `json:"payload"`

	WiringSchema *WiringSchema `gorm:"foreignKey:WiringSchemaID;constraint:OnDelete:CASCADE" json:"wiring_schema,omitempty"`
}

func (v *WiringSchemaVersion) GetRootID() string          { return v.WiringSchemaID }
func (v *WiringSchemaVersion) GetVersionNumber() int      { return v.VersionNumber }
func (v *WiringSchemaVersion) GetPayload() datatypes.JSON { return v.Payload }
func (v *WiringSchemaVersion) GetCreatedBy() string       { return v.CreatedBy }
