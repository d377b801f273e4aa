package models

import "gorm.io/datatypes"

// Product3D is the root identity of a 3D part design. Version payloads carry
// the parametric model description (format, parameters, source).
type Product3D struct {
	BaseModel

	ProjectID        string  `gorm:"type:uuid;not null;index" json:"project_id"`
	CurrentVersionID *string `gorm:"type:uuid" json:"current_version_id"`

	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
}

// TableName avoids awkward pluralisation of the trailing digit.
func (Product3D) TableName() string { return "product3d_roots" }

func (p *Product3D) GetProjectID() string           { return p.ProjectID }
func (p *Product3D) GetCurrentVersionID() *string   { return p.CurrentVersionID }
func (p *Product3D) SetCurrentVersionID(id *string) { p.CurrentVersionID = id }
func (p *Product3D) Kind() EntityKind               { return KindProduct3D }

// Product3DVersion stores one immutable revision of a 3D part design.
type Product3DVersion struct {
	BaseModel

	Product3DID   string         `gorm:"column:product3d_id;type:uuid;not null;uniqueIndex:idx_product3d_versions_number,priority:1" json:"product3d_id"`
	VersionNumber int            `gorm:"not null;uniqueIndex:idx_product3d_versions_number,priority:2" json:"version_number"`
	CreatedBy     string         `gorm:"size:64;not null" json:"created_by"`
	Payload       datatypes.JSON `json:"payload"`

	Product3D *Product3D `gorm:"foreignKey:Product3DID;constraint:OnDelete:CASCADE" json:"product3d,omitempty"`
}

func (Product3DVersion) TableName() string { return "product3d_versions" }

func (v *Product3DVersion) GetRootID() string          { return v.Product3DID }
func (v *Product3DVersion) GetVersionNumber() int      { return v.VersionNumber }
func (v *Product3DVersion) GetPayload() datatypes.JSON { return v.Payload }
func (v *Product3DVersion) GetCreatedBy() string       { return v.CreatedBy }
