package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityKind discriminates the five versioned artifact kinds.
type EntityKind string

const (
	KindRequirement  EntityKind = "requirement"
	KindComponent    EntityKind = "component"
	KindWiringSchema EntityKind = "wiring_schema"
	KindProduct3D    EntityKind = "product3d"
	KindDocument     EntityKind = "document"
)

// Change types recorded in the changelog.
const (
	ChangeTypeCreate   = "create"
	ChangeTypeUpdate   = "update"
	ChangeTypeDelete   = "delete"
	ChangeTypeValidate = "validate"
)

// Canonical author values. Call sites may pass arbitrary strings; anything
// outside this pair is stored verbatim in both version and changelog rows.
const (
	AuthorAI   = "AI"
	AuthorUser = "User"
)

// VersionedRoot is the stable identity of a versioned artifact. It never
// carries content itself; content lives in the version chain.
type VersionedRoot interface {
	GetID() string
	GetProjectID() string
	GetCurrentVersionID() *string
	SetCurrentVersionID(id *string)
	Kind() EntityKind
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// EntityVersion is one immutable revision of a root's content.
type EntityVersion interface {
	GetID() string
	GetRootID() string
	GetVersionNumber() int
	GetPayload() datatypes.JSON
	GetCreatedBy() string
	GetCreatedAt() time.Time
}
