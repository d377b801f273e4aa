package services

import (
	"context"
	"errors"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// Product3DService shapes parametric 3D design payloads (format, parameters,
// generator source) on top of the shared version service.
type Product3DService struct {
	versions *VersionService
}

// NewProduct3DService constructs a Product3DService.
func NewProduct3DService(versions *VersionService) (*Product3DService, error) {
	if versions == nil {
		return nil, errors.New("product3d service: version service is required")
	}
	return &Product3DService{versions: versions}, nil
}

func (s *Product3DService) Kind() models.EntityKind { return models.KindProduct3D }

// Create registers a new 3D design with its version 1 payload.
func (s *Product3DService) Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	shaped, err := shapeProduct3DPayload(payload)
	if err != nil {
		return EntityDTO{}, err
	}
	return s.versions.CreateEntity(ctx, models.KindProduct3D, projectID, shaped, author)
}

// AddVersion appends a revision of the 3D design.
func (s *Product3DService) AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	shaped, err := shapeProduct3DPayload(payload)
	if err != nil {
		return VersionDTO{}, err
	}
	return s.versions.AddVersion(ctx, models.KindProduct3D, rootID, shaped, author)
}

// Validate accepts or rejects a 3D design version.
func (s *Product3DService) Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	return s.versions.Validate(ctx, models.KindProduct3D, rootID, versionID, decision, author)
}

// NextVersionNumber reports the next free version number.
func (s *Product3DService) NextVersionNumber(ctx context.Context, rootID string) (int, error) {
	return s.versions.NextVersionNumber(ctx, models.KindProduct3D, rootID)
}

// History lists the design's version chain, newest first.
func (s *Product3DService) History(ctx context.Context, rootID string) ([]VersionDTO, error) {
	return s.versions.ListHistory(ctx, models.KindProduct3D, rootID)
}

// Get fetches a design with its current version.
func (s *Product3DService) Get(ctx context.Context, rootID string) (EntityDTO, error) {
	return s.versions.GetEntity(ctx, models.KindProduct3D, rootID)
}

// ListByProject returns all 3D designs in a project.
func (s *Product3DService) ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error) {
	return s.versions.ListByProject(ctx, models.KindProduct3D, projectID)
}

// shapeProduct3DPayload defaults the model format and keeps parameters a map.
func shapeProduct3DPayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	if _, ok := payload["format"]; !ok {
		payload["format"] = "cadquery"
	}

	params, ok := payload["parameters"]
	if !ok || params == nil {
		payload["parameters"] = map[string]any{}
	} else if _, isMap := params.(map[string]any); !isMap {
		return nil, apperrors.NewBadRequest("product3d payload field parameters must be an object")
	}
	return payload, nil
}
