package models

import "gorm.io/datatypes"

// Document is the root identity of a technical document.
type Document struct {
	BaseModel

	ProjectID        string  `gorm:"type:uuid;not null;index" json:"project_id"`
	CurrentVersionID *string `gorm:"type:uuid" json:"current_version_id"`

	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
}

func (d *Document) GetProjectID() string           { return d.ProjectID }
func (d *Document) GetCurrentVersionID() *string   { return d.CurrentVersionID }
func (d *Document) SetCurrentVersionID(id *string) { d.CurrentVersionID = id }
func (d *Document) Kind() EntityKind               { return KindDocument }

// DocumentVersion stores one immutable revision of a document's content.
type DocumentVersion struct {
	BaseModel

	DocumentID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_document_versions_number,priority:1" json:"document_id"`
	VersionNumber int            `gorm:"not null;uniqueIndex:idx_document_versions_number,priority:2" json:"version_number"`
	CreatedBy     string         `gorm:"size:64;not null" json:"created_by"`
	Payload       datatypes.JSON `json:"payload"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"document,omitempty"`
}

func (v *DocumentVersion) GetRootID() string          { return v.DocumentID }
func (v *DocumentVersion) GetVersionNumber() int      { return v.VersionNumber }
func (v *DocumentVersion) GetPayload() datatypes.JSON { return v.Payload }
func (v *DocumentVersion) GetCreatedBy() string       { return v.CreatedBy }
