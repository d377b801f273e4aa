package services

import (
	"context"
	"errors"
	"strings"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// RequirementService shapes requirement payloads (name, description, status)
// on top of the shared version service.
type RequirementService struct {
	versions *VersionService
}

// NewRequirementService constructs a RequirementService.
func NewRequirementService(versions *VersionService) (*RequirementService, error) {
	if versions == nil {
		return nil, errors.New("requirement service: version service is required")
	}
	return &RequirementService{versions: versions}, nil
}

func (s *RequirementService) Kind() models.EntityKind { return models.KindRequirement }

// Create registers a new requirement with its version 1 payload.
func (s *RequirementService) Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	shaped, err := shapeRequirementPayload(payload)
	if err != nil {
		return EntityDTO{}, err
	}
	return s.versions.CreateEntity(ctx, models.KindRequirement, projectID, shaped, author)
}

// AddVersion appends a revision of the requirement.
func (s *RequirementService) AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	shaped, err := shapeRequirementPayload(payload)
	if err != nil {
		return VersionDTO{}, err
	}
	return s.versions.AddVersion(ctx, models.KindRequirement, rootID, shaped, author)
}

// Validate accepts or rejects a requirement version.
func (s *RequirementService) Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	return s.versions.Validate(ctx, models.KindRequirement, rootID, versionID, decision, author)
}

// NextVersionNumber reports the next free version number.
func (s *RequirementService) NextVersionNumber(ctx context.Context, rootID string) (int, error) {
	return s.versions.NextVersionNumber(ctx, models.KindRequirement, rootID)
}

// History lists the requirement's version chain, newest first.
func (s *RequirementService) History(ctx context.Context, rootID string) ([]VersionDTO, error) {
	return s.versions.ListHistory(ctx, models.KindRequirement, rootID)
}

// Get fetches a requirement with its current version.
func (s *RequirementService) Get(ctx context.Context, rootID string) (EntityDTO, error) {
	return s.versions.GetEntity(ctx, models.KindRequirement, rootID)
}

// ListByProject returns all requirements in a project.
func (s *RequirementService) ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error) {
	return s.versions.ListByProject(ctx, models.KindRequirement, projectID)
}

func shapeRequirementPayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	name, _ := payload["name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewBadRequest("requirement payload requires a name")
	}

	if _, ok := payload["status"]; !ok {
		payload["status"] = "draft"
	}
	return payload, nil
}
