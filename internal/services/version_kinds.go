package services

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/models"
)

// entityKind describes how the version service maps one artifact kind onto
// its pair of tables. The closures return concrete model values so GORM can
// scan into them; everything else operates through the shared interfaces.
type entityKind struct {
	kind         models.EntityKind
	versionTable string
	rootColumn   string

	newRoot      func(projectID string) models.VersionedRoot
	newVersion   func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion
	listVersions func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error)
	listRoots    func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error)
}

func (k entityKind) findRoot(tx *gorm.DB, id string) (models.VersionedRoot, error) {
	root := k.newRoot("")
	if err := tx.First(root, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return root, nil
}

// findVersion looks a version up scoped to its root, never across roots, so a
// stray id from another chain can not corrupt the current pointer.
func (k entityKind) findVersion(tx *gorm.DB, rootID, versionID string) (models.EntityVersion, error) {
	version := k.newVersion("", 0, nil, "")
	err := tx.Where(k.rootColumn+" = ? AND id = ?", rootID, versionID).
		First(version).Error
	if err != nil {
		return nil, err
	}
	return version, nil
}

// firstRootByProject returns the oldest root of this kind in the project, or
// gorm.ErrRecordNotFound when the project has none yet.
func (k entityKind) firstRootByProject(tx *gorm.DB, projectID string) (models.VersionedRoot, error) {
	root := k.newRoot("")
	err := tx.Where("project_id = ?", projectID).
		Order("created_at ASC").
		First(root).Error
	if err != nil {
		return nil, err
	}
	return root, nil
}

func kindFor(kind models.EntityKind) (entityKind, error) {
	k, ok := entityKinds[kind]
	if !ok {
		return entityKind{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return k, nil
}

var entityKinds = map[models.EntityKind]entityKind{
	models.KindRequirement: {
		kind:         models.KindRequirement,
		versionTable: "requirement_versions",
		rootColumn:   "requirement_id",
		newRoot: func(projectID string) models.VersionedRoot {
			return &models.Requirement{ProjectID: projectID}
		},
		newVersion: func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion {
			return &models.RequirementVersion{RequirementID: rootID, VersionNumber: number, Payload: payload, CreatedBy: createdBy}
		},
		listVersions: func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error) {
			var rows []models.RequirementVersion
			if err := tx.Where("requirement_id = ?", rootID).Order("version_number DESC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.EntityVersion, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
		listRoots: func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error) {
			var rows []models.Requirement
			if err := tx.Where("project_id = ?", projectID).Order("created_at ASC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.VersionedRoot, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
	},
	models.KindComponent: {
		kind:         models.KindComponent,
		versionTable: "component_versions",
		rootColumn:   "component_id",
		newRoot: func(projectID string) models.VersionedRoot {
			return &models.Component{ProjectID: projectID}
		},
		newVersion: func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion {
			return &models.ComponentVersion{ComponentID: rootID, VersionNumber: number, Payload: payload, CreatedBy: createdBy}
		},
		listVersions: func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error) {
			var rows []models.ComponentVersion
			if err := tx.Where("component_id = ?", rootID).Order("version_number DESC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.EntityVersion, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
		listRoots: func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error) {
			var rows []models.Component
			if err := tx.Where("project_id = ?", projectID).Order("created_at ASC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.VersionedRoot, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
	},
	models.KindWiringSchema: {
		kind:         models.KindWiringSchema,
		versionTable: "wiring_schema_versions",
		rootColumn:   "wiring_schema_id",
		newRoot: func(projectID string) models.VersionedRoot {
			return &models.WiringSchema{ProjectID: projectID}
		},
		newVersion: func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion {
			return &models.WiringSchemaVersion{WiringSchemaID: rootID, VersionNumber: number, Payload: payload, CreatedBy: createdBy}
		},
		listVersions: func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error) {
			var rows []models.WiringSchemaVersion
			if err := tx.Where("wiring_schema_id = ?", rootID).Order("version_number DESC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.EntityVersion, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
		listRoots: func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error) {
			var rows []models.WiringSchema
			if err := tx.Where("project_id = ?", projectID).Order("created_at ASC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.VersionedRoot, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
	},
	models.KindProduct3D: {
		kind:         models.KindProduct3D,
		versionTable: "product3d_versions",
		rootColumn:   "product3d_id",
		newRoot: func(projectID string) models.VersionedRoot {
			return &models.Product3D{ProjectID: projectID}
		},
		newVersion: func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion {
			return &models.Product3DVersion{Product3DID: rootID, VersionNumber: number, Payload: payload, CreatedBy: createdBy}
		},
		listVersions: func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error) {
			var rows []models.Product3DVersion
			if err := tx.Where("product3d_id = ?", rootID).Order("version_number DESC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.EntityVersion, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
		listRoots: func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error) {
			var rows []models.Product3D
			if err := tx.Where("project_id = ?", projectID).Order("created_at ASC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.VersionedRoot, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
	},
	models.KindDocument: {
		kind:         models.KindDocument,
		versionTable: "document_versions",
		rootColumn:   "document_id",
		newRoot: func(projectID string) models.VersionedRoot {
			return &models.Document{ProjectID: projectID}
		},
		newVersion: func(rootID string, number int, payload datatypes.JSON, createdBy string) models.EntityVersion {
			return &models.DocumentVersion{DocumentID: rootID, VersionNumber: number, Payload: payload, CreatedBy: createdBy}
		},
		listVersions: func(tx *gorm.DB, rootID string) ([]models.EntityVersion, error) {
			var rows []models.DocumentVersion
			if err := tx.Where("document_id = ?", rootID).Order("version_number DESC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.EntityVersion, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
		listRoots: func(tx *gorm.DB, projectID string) ([]models.VersionedRoot, error) {
			var rows []models.Document
			if err := tx.Where("project_id = ?", projectID).Order("created_at ASC").Find(&rows).Error; err != nil {
				return nil, err
			}
			out := make([]models.VersionedRoot, len(rows))
			for i := range rows {
				out[i] = &rows[i]
			}
			return out, nil
		},
	},
}
