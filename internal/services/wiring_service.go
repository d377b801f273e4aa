package services

import (
	"context"
	"errors"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// WiringService shapes wiring-graph payloads ({nodes, edges}) on top of the
// shared version service.
type WiringService struct {
	versions *VersionService
}

// NewWiringService constructs a WiringService.
func NewWiringService(versions *VersionService) (*WiringService, error) {
	if versions == nil {
		return nil, errors.New("wiring service: version service is required")
	}
	return &WiringService{versions: versions}, nil
}

func (s *WiringService) Kind() models.EntityKind { return models.KindWiringSchema }

// Create registers a new wiring schema with its version 1 graph.
func (s *WiringService) Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	shaped, err := shapeWiringPayload(payload)
	if err != nil {
		return EntityDTO{}, err
	}
	return s.versions.CreateEntity(ctx, models.KindWiringSchema, projectID, shaped, author)
}

// AddVersion appends a revision of the wiring graph.
func (s *WiringService) AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	shaped, err := shapeWiringPayload(payload)
	if err != nil {
		return VersionDTO{}, err
	}
	return s.versions.AddVersion(ctx, models.KindWiringSchema, rootID, shaped, author)
}

// Validate accepts or rejects a wiring schema version.
func (s *WiringService) Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	return s.versions.Validate(ctx, models.KindWiringSchema, rootID, versionID, decision, author)
}

// NextVersionNumber reports the next free version number.
func (s *WiringService) NextVersionNumber(ctx context.Context, rootID string) (int, error) {
	return s.versions.NextVersionNumber(ctx, models.KindWiringSchema, rootID)
}

// History lists the wiring schema's version chain, newest first.
func (s *WiringService) History(ctx context.Context, rootID string) ([]VersionDTO, error) {
	return s.versions.ListHistory(ctx, models.KindWiringSchema, rootID)
}

// Get fetches a wiring schema with its current version.
func (s *WiringService) Get(ctx context.Context, rootID string) (EntityDTO, error) {
	return s.versions.GetEntity(ctx, models.KindWiringSchema, rootID)
}

// ListByProject returns all wiring schemas in a project.
func (s *WiringService) ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error) {
	return s.versions.ListByProject(ctx, models.KindWiringSchema, projectID)
}

// shapeWiringPayload normalises the graph: nodes and edges default to empty
// lists and must be lists when supplied.
func shapeWiringPayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	for _, key := range []string{"nodes", "edges"} {
		value, ok := payload[key]
		if !ok || value == nil {
			payload[key] = []any{}
			continue
		}
		if _, isList := value.([]any); !isList {
			return nil, apperrors.NewBadRequest("wiring payload field " + key + " must be a list")
		}
	}
	return payload, nil
}
