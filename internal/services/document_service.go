package services

import (
	"context"
	"errors"
	"strings"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

// DocumentService manages versioned project documents.
type DocumentService struct {
	versions *VersionService
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(versions *VersionService) (*DocumentService, error) {
	if versions == nil {
		return nil, errors.New("document service: version service is required")
	}
	return &DocumentService{versions: versions}, nil
}

func (s *DocumentService) Kind() models.EntityKind { return models.KindDocument }

// Create registers a new document with its version 1 payload.
func (s *DocumentService) Create(ctx context.Context, projectID string, payload map[string]any, author string) (EntityDTO, error) {
	shaped, err := shapeDocumentPayload(payload)
	if err != nil {
		return EntityDTO{}, err
	}
	return s.versions.CreateEntity(ctx, models.KindDocument, projectID, shaped, author)
}

// AddVersion appends a revision of the document.
func (s *DocumentService) AddVersion(ctx context.Context, rootID string, payload map[string]any, author string) (VersionDTO, error) {
	shaped, err := shapeDocumentPayload(payload)
	if err != nil {
		return VersionDTO{}, err
	}
	return s.versions.AddVersion(ctx, models.KindDocument, rootID, shaped, author)
}

// Validate accepts or rejects a document version.
func (s *DocumentService) Validate(ctx context.Context, rootID, versionID string, decision Decision, author string) (EntityDTO, error) {
	return s.versions.Validate(ctx, models.KindDocument, rootID, versionID, decision, author)
}

// NextVersionNumber reports the next free version number.
func (s *DocumentService) NextVersionNumber(ctx context.Context, rootID string) (int, error) {
	return s.versions.NextVersionNumber(ctx, models.KindDocument, rootID)
}

// History lists the document's version chain, newest first.
func (s *DocumentService) History(ctx context.Context, rootID string) ([]VersionDTO, error) {
	return s.versions.ListHistory(ctx, models.KindDocument, rootID)
}

// Get fetches a document with its current version.
func (s *DocumentService) Get(ctx context.Context, rootID string) (EntityDTO, error) {
	return s.versions.GetEntity(ctx, models.KindDocument, rootID)
}

// ListByProject returns all documents in a project.
func (s *DocumentService) ListByProject(ctx context.Context, projectID string) ([]EntityDTO, error) {
	return s.versions.ListByProject(ctx, models.KindDocument, projectID)
}

// shapeDocumentPayload requires a title and defaults the body.
func shapeDocumentPayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	title, _ := payload["title"].(string)
	if strings.TrimSpace(title) == "" {
		return nil, apperrors.NewBadRequest("document payload requires a title")
	}

	if _, ok := payload["content"]; !ok {
		payload["content"] = ""
	}
	return payload, nil
}
