package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/logger"
	"github.com/unforkableco/fabrikator/pkg/metrics"
)

// addVersionMaxAttempts bounds the retry loop that resolves version-number
// collisions between concurrent writers.
const addVersionMaxAttempts = 5

// Decision is the outcome of a validate-version call.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// EntityDTO represents a versioned artifact root returned to API consumers.
type EntityDTO struct {
	ID               string            `json:"id"`
	Kind             models.EntityKind `json:"kind"`
	ProjectID        string            `json:"project_id"`
	CurrentVersionID *string           `json:"current_version_id"`
	CurrentVersion   *VersionDTO       `json:"current_version,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// VersionDTO represents one immutable revision.
type VersionDTO struct {
	ID            string         `json:"id"`
	RootID        string         `json:"root_id"`
	VersionNumber int            `json:"version_number"`
	CreatedBy     string         `json:"created_by"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// VersionService is the entity version manager: it composes the version
// allocator, the transactional store and the changelog recorder into atomic
// create / add-version / validate transitions for all five artifact kinds.
type VersionService struct {
	db  *gorm.DB
	log *zap.Logger

	// onConflict, when set, observes every version-number collision before
	// the corresponding retry. Tests use it to assert the attempt counter
	// never exceeds addVersionMaxAttempts.
	onConflict func(kind models.EntityKind, rootID string, attempt int)
}

// NewVersionService constructs a VersionService backed by the supplied database.
func NewVersionService(db *gorm.DB) (*VersionService, error) {
	if db == nil {
		return nil, errors.New("version service: db is required")
	}
	return &VersionService{
		db:  db,
		log: logger.WithModule("versions"),
	}, nil
}

// CreateEntity creates a root and its version 1 in one atomic unit: the root
// row, the first version, the current pointer and the changelog entry either
// all become visible together or not at all.
func (s *VersionService) CreateEntity(ctx context.Context, kind models.EntityKind, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return EntityDTO{}, apperrors.NewBadRequest(err.Error())
	}

	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return EntityDTO{}, apperrors.NewBadRequest("project id is required")
	}

	encoded, err := encodePayload(payload)
	if err != nil {
		return EntityDTO{}, apperrors.NewBadRequest("invalid payload")
	}

	var (
		root    models.VersionedRoot
		version models.EntityVersion
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("project not found")
			}
			return fmt.Errorf("version service: fetch project: %w", err)
		}

		root = k.newRoot(projectID)
		if err := tx.Create(root).Error; err != nil {
			return fmt.Errorf("version service: create %s root: %w", kind, err)
		}

		version = k.newVersion(root.GetID(), 1, encoded, author)
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("version service: create %s version 1: %w", kind, err)
		}

		if err := repointCurrent(tx, root, version.GetID()); err != nil {
			return err
		}

		return recordChange(tx, kind, models.ChangeTypeCreate, author, version.GetID(), map[string]any{
			"type":          "new_version",
			"action":        "add",
			"versionNumber": 1,
		})
	})
	if err != nil {
		return EntityDTO{}, err
	}

	metrics.VersionWrites.WithLabelValues(string(kind), models.ChangeTypeCreate).Inc()
	s.log.Info("entity created",
		zap.String("entity", string(kind)),
		zap.String("root_id", root.GetID()),
		zap.String("author", author),
	)

	dto := rootDTO(root)
	v := versionDTO(version)
	dto.CurrentVersion = &v
	return dto, nil
}

// AddVersion appends a new version to an existing chain and advances the
// current pointer. Concurrent writers against the same root are serialized
// here: a uniqueness conflict on (root, version_number) triggers a bounded
// retry that recomputes the next number with an attempt-dependent offset.
func (s *VersionService) AddVersion(ctx context.Context, kind models.EntityKind, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return VersionDTO{}, apperrors.NewBadRequest(err.Error())
	}

	encoded, err := encodePayload(payload)
	if err != nil {
		return VersionDTO{}, apperrors.NewBadRequest("invalid payload")
	}

	for attempt := 0; attempt < addVersionMaxAttempts; attempt++ {
		number, err := s.nextNumber(ctx, k, rootID)
		if err != nil {
			return VersionDTO{}, err
		}
		// The offset spreads retrying writers across distinct candidate
		// numbers. Gaps it leaves behind are tolerated; duplicates are not.
		number += attempt

		var version models.EntityVersion
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			root, err := k.findRoot(tx, rootID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NewNotFound(string(kind) + " not found")
				}
				return fmt.Errorf("version service: fetch %s root: %w", kind, err)
			}

			version = k.newVersion(root.GetID(), number, encoded, author)
			if err := tx.Create(version).Error; err != nil {
				return err
			}

			if err := repointCurrent(tx, root, version.GetID()); err != nil {
				return err
			}

			return recordChange(tx, kind, models.ChangeTypeUpdate, author, version.GetID(), map[string]any{
				"type":          "new_version",
				"action":        "add",
				"versionNumber": number,
			})
		})
		if txErr == nil {
			metrics.VersionWrites.WithLabelValues(string(kind), models.ChangeTypeUpdate).Inc()
			return versionDTO(version), nil
		}

		if isUniqueConstraintError(txErr) {
			metrics.VersionConflicts.WithLabelValues(string(kind), "retried").Inc()
			if s.onConflict != nil {
				s.onConflict(kind, rootID, attempt+1)
			}
			s.log.Debug("version number collision, retrying",
				zap.String("entity", string(kind)),
				zap.String("root_id", rootID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		var appErr *apperrors.AppError
		if errors.As(txErr, &appErr) {
			return VersionDTO{}, appErr
		}
		return VersionDTO{}, fmt.Errorf("version service: add %s version: %w", kind, txErr)
	}

	metrics.VersionConflicts.WithLabelValues(string(kind), "exhausted").Inc()
	s.log.Warn("version conflict retries exhausted",
		zap.String("entity", string(kind)),
		zap.String("root_id", rootID),
	)
	return VersionDTO{}, apperrors.ErrVersionConflict
}

// Validate accepts or rejects an existing version. Accept repoints the
// current pointer to the target version, which may rewind or fast-forward the
// chain; reject records an audit entry and leaves the pointer untouched.
func (s *VersionService) Validate(ctx context.Context, kind models.EntityKind, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return EntityDTO{}, apperrors.NewBadRequest(err.Error())
	}
	if decision != DecisionAccept && decision != DecisionReject {
		return EntityDTO{}, apperrors.NewBadRequest("decision must be accept or reject")
	}

	var root models.VersionedRoot
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		root, err = k.findRoot(tx, rootID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound(string(kind) + " not found")
			}
			return fmt.Errorf("version service: fetch %s root: %w", kind, err)
		}

		version, err := k.findVersion(tx, rootID, versionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("version not found for this " + string(kind))
			}
			return fmt.Errorf("version service: fetch %s version: %w", kind, err)
		}

		if decision == DecisionAccept {
			if err := repointCurrent(tx, root, version.GetID()); err != nil {
				return err
			}
		}

		return recordChange(tx, kind, models.ChangeTypeValidate, author, version.GetID(), map[string]any{
			"type":          "validate_version",
			"action":        string(decision),
			"versionNumber": version.GetVersionNumber(),
		})
	})
	if err != nil {
		return EntityDTO{}, err
	}

	metrics.VersionWrites.WithLabelValues(string(kind), models.ChangeTypeValidate).Inc()
	return rootDTO(root), nil
}

// NextVersionNumber computes max(version numbers)+1 for the root, or 1 when
// the chain is empty. It is a read, not a reservation: concurrent callers may
// observe the same value, and only AddVersion's retry loop serializes them.
func (s *VersionService) NextVersionNumber(ctx context.Context, kind models.EntityKind, rootID string) (int, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return 0, apperrors.NewBadRequest(err.Error())
	}

	if _, err := k.findRoot(s.db.WithContext(ctx), rootID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.NewNotFound(string(kind) + " not found")
		}
		return 0, fmt.Errorf("version service: fetch %s root: %w", kind, err)
	}

	return s.nextNumber(ctx, k, rootID)
}

// ListHistory returns the full version chain, newest first.
func (s *VersionService) ListHistory(ctx context.Context, kind models.EntityKind, rootID string) ([]VersionDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	tx := s.db.WithContext(ctx)
	if _, err := k.findRoot(tx, rootID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound(string(kind) + " not found")
		}
		return nil, fmt.Errorf("version service: fetch %s root: %w", kind, err)
	}

	versions, err := k.listVersions(tx, rootID)
	if err != nil {
		return nil, fmt.Errorf("version service: list %s versions: %w", kind, err)
	}

	out := make([]VersionDTO, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionDTO(v))
	}
	return out, nil
}

// GetEntity returns the root and its current version payload.
func (s *VersionService) GetEntity(ctx context.Context, kind models.EntityKind, rootID string) (EntityDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return EntityDTO{}, apperrors.NewBadRequest(err.Error())
	}

	tx := s.db.WithContext(ctx)
	root, err := k.findRoot(tx, rootID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return EntityDTO{}, apperrors.NewNotFound(string(kind) + " not found")
		}
		return EntityDTO{}, fmt.Errorf("version service: fetch %s root: %w", kind, err)
	}

	dto := rootDTO(root)
	if cur := root.GetCurrentVersionID(); cur != nil {
		version, err := k.findVersion(tx, rootID, *cur)
		if err != nil {
			return EntityDTO{}, fmt.Errorf("version service: fetch current %s version: %w", kind, err)
		}
		v := versionDTO(version)
		dto.CurrentVersion = &v
	}
	return dto, nil
}

// ListByProject returns every root of the kind within a project, including
// current version payloads.
func (s *VersionService) ListByProject(ctx context.Context, kind models.EntityKind, projectID string) ([]EntityDTO, error) {
	ctx = ensureContext(ctx)

	k, err := kindFor(kind)
	if err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	tx := s.db.WithContext(ctx)
	roots, err := k.listRoots(tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("version service: list %s roots: %w", kind, err)
	}

	out := make([]EntityDTO, 0, len(roots))
	for _, root := range roots {
		dto := rootDTO(root)
		if cur := root.GetCurrentVersionID(); cur != nil {
			version, err := k.findVersion(tx, root.GetID(), *cur)
			if err == nil {
				v := versionDTO(version)
				dto.CurrentVersion = &v
			}
		}
		out = append(out, dto)
	}
	return out, nil
}

// nextNumber is the version allocator. Correct only at the instant of the
// read; serialization belongs to AddVersion's retry loop.
func (s *VersionService) nextNumber(ctx context.Context, k entityKind, rootID string) (int, error) {
	var current sql.NullInt64
	err := s.db.WithContext(ctx).
		Table(k.versionTable).
		Where(k.rootColumn+" = ?", rootID).
		Select("MAX(version_number)").
		Scan(&current).Error
	if err != nil {
		return 0, fmt.Errorf("version service: next number for %s: %w", k.kind, err)
	}
	if !current.Valid {
		return 1, nil
	}
	return int(current.Int64) + 1, nil
}

// repointCurrent advances the root's current pointer and keeps the in-memory
// value in step with the row.
func repointCurrent(tx *gorm.DB, root models.VersionedRoot, versionID string) error {
	if err := tx.Model(root).Update("current_version_id", versionID).Error; err != nil {
		return fmt.Errorf("version service: repoint current version: %w", err)
	}
	root.SetCurrentVersionID(&versionID)
	return nil
}

// recordChange appends the changelog entry inside the caller's transaction.
/// It is never invoked outside of one: a transition without its audit record
// must not be observable.
func recordChange(tx *gorm.DB, kind models.EntityKind, changeType, author, versionID string, diff map[string]any) error {
	encoded, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("version service: marshal diff payload: %w", err)
	}

	entry := models.ChangeLog{
		Entity:      kind,
		ChangeType:  changeType,
		Author:      author,
		DiffPayload: encoded,
	}
	if err := entry.SetVersionRef(versionID); err != nil {
		return err
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("version service: record changelog: %w", err)
	}
	return nil
}

func rootDTO(root models.VersionedRoot) EntityDTO {
	return EntityDTO{
		ID:               root.GetID(),
		Kind:             root.Kind(),
		ProjectID:        root.GetProjectID(),
		CurrentVersionID: root.GetCurrentVersionID(),
		CreatedAt:        root.GetCreatedAt(),
		UpdatedAt:        root.GetUpdatedAt(),
	}
}

func versionDTO(version models.EntityVersion) VersionDTO {
	return VersionDTO{
		ID:            version.GetID(),
		RootID:        version.GetRootID(),
		VersionNumber: version.GetVersionNumber(),
		CreatedBy:     version.GetCreatedBy(),
		Payload:       decodePayload(version.GetPayload()),
		CreatedAt:     version.GetCreatedAt(),
	}
}
