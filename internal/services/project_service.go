package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// CreateProjectInput defines the payload required to create a project.
type CreateProjectInput struct {
	Name        string
	Description string
	OwnerUserID string
}

// UpdateProjectInput defines mutable project fields.
type UpdateProjectInput struct {
	Name        *string
	Description *string
}

// ProjectDTO represents a project returned to API consumers.
type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChangeLogDTO represents one audit entry in a project's history.
type ChangeLogDTO struct {
	ID         string            `json:"id"`
	Entity     models.EntityKind `json:"entity"`
	ChangeType string            `json:"change_type"`
	Author     string            `json:"author"`
	VersionID  string            `json:"version_id,omitempty"`
	Diff       map[string]any    `json:"diff,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ProjectService manages project lifecycle and project-wide history assembly.
// Deleting a project is the single teardown path for roots, versions and
// changelog rows, all handled by cascading foreign keys.
type ProjectService struct {
	db *gorm.DB
}

// NewProjectService constructs a ProjectService using the provided database handle.
func NewProjectService(db *gorm.DB) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	return &ProjectService{db: db}, nil
}

// Create stores a new project.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (ProjectDTO, error) {
	ctx = ensureContext(ctx)

	project := models.Project{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		OwnerUserID: strings.TrimSpace(input.OwnerUserID),
	}
	if project.Name == "" {
		return ProjectDTO{}, apperrors.NewBadRequest("project name is required")
	}

	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return ProjectDTO{}, fmt.Errorf("project service: create: %w", err)
	}
	return projectDTO(project), nil
}

// List returns projects, optionally filtered by owner, newest first.
func (s *ProjectService) List(ctx context.Context, ownerUserID string) ([]ProjectDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Project{}).Order("created_at DESC")
	if owner := strings.TrimSpace(ownerUserID); owner != "" {
		query = query.Where("owner_user_id = ?", owner)
	}

	var rows []models.Project
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("project service: list: %w", err)
	}

	out := make([]ProjectDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, projectDTO(row))
	}
	return out, nil
}

// Get fetches a single project by id.
func (s *ProjectService) Get(ctx context.Context, id string) (ProjectDTO, error) {
	ctx = ensureContext(ctx)

	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProjectDTO{}, apperrors.NewNotFound("project not found")
		}
		return ProjectDTO{}, fmt.Errorf("project service: get: %w", err)
	}
	return projectDTO(project), nil
}

// Update mutates project name or description.
func (s *ProjectService) Update(ctx context.Context, id string, input UpdateProjectInput) (ProjectDTO, error) {
	ctx = ensureContext(ctx)

	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("project not found")
			}
			return fmt.Errorf("project service: update fetch: %w", err)
		}

		if input.Name != nil {
			project.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			project.Description = strings.TrimSpace(*input.Description)
		}

		if err := tx.Save(&project).Error; err != nil {
			return fmt.Errorf("project service: update save: %w", err)
		}
		return nil
	})
	if err != nil {
		return ProjectDTO{}, err
	}
	return projectDTO(project), nil
}

// Delete removes the project and everything beneath it: artifact roots,
// version chains, changelog entries and suggestions cascade away.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.Project{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("project service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("project not found")
	}
	return nil
}

// History assembles the project-wide changelog across all five version
// kinds, newest first. The changelog itself carries no project reference, so
// each kind is scoped through its version and root tables.
func (s *ProjectService) History(ctx context.Context, projectID string, page, perPage int) ([]ChangeLogDTO, int64, error) {
	ctx = ensureContext(ctx)

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, 0, err
	}

	scope := `
		requirement_version_id IN (SELECT id FROM requirement_versions WHERE requirement_id IN (SELECT id FROM requirements WHERE project_id = @project))
		OR component_version_id IN (SELECT id FROM component_versions WHERE component_id IN (SELECT id FROM components WHERE project_id = @project))
		OR wiring_schema_version_id IN (SELECT id FROM wiring_schema_versions WHERE wiring_schema_id IN (SELECT id FROM wiring_schemas WHERE project_id = @project))
		OR product3d_version_id IN (SELECT id FROM product3d_versions WHERE product3d_id IN (SELECT id FROM product3d_roots WHERE project_id = @project))
		OR document_version_id IN (SELECT id FROM document_versions WHERE document_id IN (SELECT id FROM documents WHERE project_id = @project))`

	query := s.db.WithContext(ctx).
		Model(&models.ChangeLog{}).
		Where(scope, map[string]any{"project": projectID})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("project service: count history: %w", err)
	}

	var rows []models.ChangeLog
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("project service: list history: %w", err)
	}

	out := make([]ChangeLogDTO, 0, len(rows))
	for _, row := range rows {
		dto := ChangeLogDTO{
			ID:         row.ID,
			Entity:     row.Entity,
			ChangeType: row.ChangeType,
			Author:     row.Author,
			Diff:       decodePayload(row.DiffPayload),
			CreatedAt:  row.CreatedAt,
		}
		if _, versionID, ok := row.VersionRef(); ok {
			dto.VersionID = versionID
		}
		out = append(out, dto)
	}
	return out, total, nil
}

func projectDTO(project models.Project) ProjectDTO {
	return ProjectDTO{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		OwnerUserID: project.OwnerUserID,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}
}
