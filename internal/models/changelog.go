package models

import (
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChangeLog is the append-only audit record of a single version transition.
// Exactly one of the five version references must be populated; the Entity
// column names which one. Entries are written in the same transaction as the
// transition they describe and are never updated afterwards.
type ChangeLog struct {
	BaseModel

	Entity      EntityKind     `gorm:"size:32;not null;index" json:"entity"`
	ChangeType  string         `gorm:"size:16;not null" json:"change_type"`
	Author      string         `gorm:"size:64;not null" json:"author"`
	DiffPayload datatypes.JSON `json:"diff_payload"`

	RequirementVersionID  *string `gorm:"type:uuid;index" json:"requirement_version_id,omitempty"`
	ComponentVersionID    *string `gorm:"type:uuid;index" json:"component_version_id,omitempty"`
	WiringSchemaVersionID *string `gorm:"type:uuid;index" json:"wiring_schema_version_id,omitempty"`
	Product3DVersionID    *string `gorm:"column:product3d_version_id;type:uuid;index" json:"product3d_version_id,omitempty"`
	DocumentVersionID     *string `gorm:"type:uuid;index" json:"document_version_id,omitempty"`

	RequirementVersion  *RequirementVersion  `gorm:"foreignKey:RequirementVersionID;constraint:OnDelete:CASCADE" json:"-"`
	ComponentVersion    *ComponentVersion    `gorm:"foreignKey:ComponentVersionID;constraint:OnDelete:CASCADE" json:"-"`
	WiringSchemaVersion *WiringSchemaVersion `gorm:"foreignKey:WiringSchemaVersionID;constraint:OnDelete:CASCADE" json:"-"`
	Product3DVersion    *Product3DVersion    `gorm:"foreignKey:Product3DVersionID;constraint:OnDelete:CASCADE" json:"-"`
	DocumentVersion     *DocumentVersion     `gorm:"foreignKey:DocumentVersionID;constraint:OnDelete:CASCADE" json:"-"`
}

// SetVersionRef populates the reference column matching the entry's entity kind.
func (c *ChangeLog) SetVersionRef(versionID string) error {
	id := strings.TrimSpace(versionID)
	if id == "" {
		return errors.New("changelog: version id is required")
	}

	switch c.Entity {
	case KindRequirement:
		c.RequirementVersionID = &id
	case KindComponent:
		c.ComponentVersionID = &id
	case KindWiringSchema:
		c.WiringSchemaVersionID = &id
	case KindProduct3D:
		c.Product3DVersionID = &id
	case KindDocument:
		c.DocumentVersionID = &id
	default:
		return errors.New("changelog: unknown entity kind " + string(c.Entity))
	}
	return nil
}

// VersionRef returns the populated version reference, if any.
func (c *ChangeLog) VersionRef() (EntityKind, string, bool) {
	for kind, ref := range map[EntityKind]*string{
		KindRequirement:  c.RequirementVersionID,
		KindComponent:    c.ComponentVersionID,
		KindWiringSchema: c.WiringSchemaVersionID,
		KindProduct3D:    c.Product3DVersionID,
		KindDocument:     c.DocumentVersionID,
	} {
		if ref != nil && *ref != "" {
			return kind, *ref, true
		}
	}
	return "", "", false
}

// BeforeSave enforces the exactly-one-reference invariant at write time. The
// relational schema cannot express it, so it is checked here instead of being
// left implicit.
func (c *ChangeLog) BeforeSave(tx *gorm.DB) error {
	if strings.TrimSpace(string(c.Entity)) == "" {
		return errors.New("changelog: entity is required")
	}
	if strings.TrimSpace(c.ChangeType) == "" {
		return errors.New("changelog: change_type is required")
	}
	if strings.TrimSpace(c.Author) == "" {
		return errors.New("changelog: author is required")
	}

	populated := 0
	for _, ref := range []*string{
		c.RequirementVersionID,
		c.ComponentVersionID,
		c.WiringSchemaVersionID,
		c.Product3DVersionID,
		c.DocumentVersionID,
	} {
		if ref != nil && strings.TrimSpace(*ref) != "" {
			populated++
		}
	}
	if populated != 1 {
		return errors.New("changelog: exactly one version reference must be set")
	}
	return nil
}
