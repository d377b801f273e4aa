package services

import (
	"context"
	"errors"
	"strings"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// ComponentService shapes bill-of-materials payloads (part name, quantity,
// electrical specs) on top of the shared version service.
type ComponentService struct {
	versions *VersionService
}

// NewComponentService constructs a ComponentService.
func NewComponentService(versions *VersionService) (*ComponentService, error) {
	if versions == nil {
		return nil, errors.New("component service: version service is required")
	}
	return &ComponentService{versions: versions}, nil
}

func (s *ComponentService) Kind() models.EntityKind { return models.KindComponent }

// Create registers a new component with its version 1 payload.
func (s *ComponentService) Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	shaped, err := shapeComponentPayload(payload)
	if err != nil {
		return EntityDTO{}, err
	}
	return s.versions.CreateEntity(ctx, models.KindComponent, projectID, shaped, author)
}

// AddVersion appends a revision of the component's specs.
func (s *ComponentService) AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	shaped, err := shapeComponentPayload(payload)
	if err != nil {
		return VersionDTO{}, err
	}
	return s.versions.AddVersion(ctx, models.KindComponent, rootID, shaped, author)
}

// Validate accepts or rejects a component version.
func (s *ComponentService) Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	return s.versions.Validate(ctx, models.KindComponent, rootID, versionID, decision, author)
}

// NextVersionNumber reports the next free version number for the component.
func (s *ComponentService) NextVersionNumber(ctx context.Context, rootID string) (int, error) {
	return s.versions.NextVersionNumber(ctx, models.KindComponent, rootID)
}

// History lists the component's version chain, newest first.
func (s *ComponentService) History(ctx context.Context, rootID string) ([]VersionDTO, error) {
	return s.versions.ListHistory(ctx, models.KindComponent, rootID)
}

// Get fetches a component with its current version.
func (s *ComponentService) Get(ctx context.Context, rootID string) (EntityDTO, error) {
	return s.versions.GetEntity(ctx, models.KindComponent, rootID)
}

// ListByProject returns the project's bill of materials.
func (s *ComponentService) ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error) {
	return s.versions.ListByProject(ctx, models.KindComponent, projectID)
}

// shapeComponentPayload enforces the minimal BOM shape: a part name, plus a
// quantity defaulting to one. Everything else passes through untouched.
func shapeComponentPayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	name, _ := payload["name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewBadRequest("component payload requires a name")
	}

	if _, ok := payload["quantity"]; !ok {
		payload["quantity"] = 1
	}
	return payload, nil
}
