package services

import (
	"context"

	"github.com/unforkableco/fabrikator/internal/models"
)

// EntityAPI is the operation set each per-kind wrapper exposes to transports.
// Wrappers add payload shaping for their artifact kind and defer everything
// else to the shared version service.
type EntityAPI interface {
	Kind() models.EntityKind
	Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error)
	AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error)
	Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error)
	NextVersionNumber(ctx context.Context, rootID string) (int, error)
	History(ctx context.Context, rootID string) ([]VersionDTO, error)
	Get(ctx context.Context, rootID string) (EntityDTO, error)
	ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error)
}
