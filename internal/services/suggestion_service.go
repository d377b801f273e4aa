package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/ai"
	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/logger"
	"github.com/unforkableco/fabrikator/pkg/metrics"
)

// suggestionKinds maps assistant item contexts onto versioned entity kinds.
// Requirements are authored by users directly and have no assistant context.
var suggestionKinds = map[string]models.EntityKind{
	models.SuggestionContextMaterials: models.KindComponent,
	models.SuggestionContext3D:        models.KindProduct3D,
	models.SuggestionContextWiring:    models.KindWiringSchema,
	models.SuggestionContextDocument:  models.KindDocument,
}

// SuggestionDTO is a batch with its items.
type SuggestionDTO struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"project_id"`
	Prompt    string              `json:"prompt,omitempty"`
	Status    string              `json:"status"`
	CreatedBy string              `json:"created_by"`
	CreatedAt time.Time           `json:"created_at"`
	Items     []SuggestionItemDTO `json:"items"`
}

// SuggestionItemDTO is one proposed payload and its reconciliation outcome.
type SuggestionItemDTO struct {
	ID               string         `json:"id"`
	Context          string         `json:"context"`
	Payload          map[string]any `json:"payload,omitempty"`
	Status           string         `json:"status"`
	Error            string         `json:"error,omitempty"`
	AppliedVersionID *string        `json:"applied_version_id,omitempty"`
}

// SuggestionService owns the assistant batch lifecycle: generation, storage
// and best-effort reconciliation against the version service. A batch is
// never applied in a single transaction; each item succeeds or fails alone.
type SuggestionService struct {
	db        *gorm.DB
	log       *zap.Logger
	versions  *VersionService
	generator ai.Generator
}

// NewSuggestionService constructs a SuggestionService. The generator may be
// nil, in which case Propose only accepts pre-built items.
func NewSuggestionService(db *gorm.DB, versions *VersionService, generator ai.Generator) (*SuggestionService, error) {
	if db == nil {
		return nil, errors.New("suggestion service: db is required")
	}
	if versions == nil {
		return nil, errors.New("suggestion service: version service is required")
	}
	return &SuggestionService{
		db:        db,
		log:       logger.WithModule("suggestions"),
		versions:  versions,
		generator: generator,
	}, nil
}

// Propose creates a pending suggestion batch for the project. When items is
// empty the configured generator is asked to produce them from the prompt.
func (s *SuggestionService) Propose(ctx context.Context, projectID, prompt, createdBy string, items []ai.ProposedItem) (SuggestionDTO, error) {
	ctx = ensureContext(ctx)

	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", strings.TrimSpace(projectID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SuggestionDTO{}, apperrors.NewNotFound("project not found")
		}
		return SuggestionDTO{}, fmt.Errorf("suggestion service: fetch project: %w", err)
	}

	if len(items) == 0 {
		if s.generator == nil {
			return SuggestionDTO{}, apperrors.NewBadRequest("suggestion requires items or a configured generator")
		}
		generated, err := s.generator.Generate(ctx, project.Name, prompt)
		if err != nil {
			return SuggestionDTO{}, apperrors.New("AI_GENERATION_FAILED", "could not generate suggestions", http.StatusBadGateway).WithInternal(err)
		}
		items = generated
	}

	suggestion := models.Suggestion{
		ProjectID: project.ID,
		Prompt:    prompt,
		Status:    models.SuggestionStatusPending,
		CreatedBy: createdBy,
	}
	for _, item := range items {
		if _, ok := suggestionKinds[item.Context]; !ok {
			return SuggestionDTO{}, apperrors.NewBadRequest("unknown suggestion context " + item.Context)
		}
		payload, err := encodePayload(item.Payload)
		if err != nil {
			return SuggestionDTO{}, apperrors.NewBadRequest("invalid suggestion payload")
		}
		suggestion.Items = append(suggestion.Items, models.SuggestionItem{
			Context: item.Context,
			Payload: payload,
			Status:  models.SuggestionItemPending,
		})
	}
	if len(suggestion.Items) == 0 {
		return SuggestionDTO{}, apperrors.NewBadRequest("suggestion has no items")
	}

	if err := s.db.WithContext(ctx).Create(&suggestion).Error; err != nil {
		return SuggestionDTO{}, fmt.Errorf("suggestion service: create suggestion: %w", err)
	}

	s.log.Info("suggestion proposed",
		zap.String("suggestion_id", suggestion.ID),
		zap.String("project_id", project.ID),
		zap.Int("items", len(suggestion.Items)),
	)
	return suggestionDTO(suggestion), nil
}

// List returns the project's suggestions, newest first.
func (s *SuggestionService) List(ctx context.Context, projectID string) ([]SuggestionDTO, error) {
	ctx = ensureContext(ctx)

	var rows []models.Suggestion
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("suggestion service: list suggestions: %w", err)
	}

	out := make([]SuggestionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, suggestionDTO(row))
	}
	return out, nil
}

// Get returns a single suggestion with its items.
func (s *SuggestionService) Get(ctx context.Context, id string) (SuggestionDTO, error) {
	suggestion, err := s.fetch(ctx, id)
	if err != nil {
		return SuggestionDTO{}, err
	}
	return suggestionDTO(suggestion), nil
}

// Accept applies a pending batch item by item. Each item drives its own
// version-service transaction; failures mark the item failed and continue.
// The batch ends accepted as long as it was still pending, even when some
// items failed, and the aggregated item errors are returned alongside.
func (s *SuggestionService) Accept(ctx context.Context, id string) (SuggestionDTO, error) {
	ctx = ensureContext(ctx)

	suggestion, err := s.fetch(ctx, id)
	if err != nil {
		return SuggestionDTO{}, err
	}
	if suggestion.Status != models.SuggestionStatusPending {
		return SuggestionDTO{}, apperrors.NewBadRequest("suggestion is " + suggestion.Status + ", not pending")
	}

	var itemErrs error
	for i := range suggestion.Items {
		item := &suggestion.Items[i]
		versionID, applyErr := s.applyItem(ctx, suggestion.ProjectID, item)
		if applyErr != nil {
			item.Status = models.SuggestionItemFailed
			item.Error = applyErr.Error()
			itemErrs = multierr.Append(itemErrs, fmt.Errorf("item %s (%s): %w", item.ID, item.Context, applyErr))
			metrics.SuggestionItems.WithLabelValues(item.Context, "failed").Inc()
		} else {
			item.Status = models.SuggestionItemApplied
			item.Error = ""
			item.AppliedVersionID = &versionID
			metrics.SuggestionItems.WithLabelValues(item.Context, "applied").Inc()
		}
		if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
			return SuggestionDTO{}, fmt.Errorf("suggestion service: save item outcome: %w", err)
		}
	}

	suggestion.Status = models.SuggestionStatusAccepted
	if err := s.db.WithContext(ctx).Model(&suggestion).Update("status", suggestion.Status).Error; err != nil {
		return SuggestionDTO{}, fmt.Errorf("suggestion service: mark accepted: %w", err)
	}

	if itemErrs != nil {
		s.log.Warn("suggestion accepted with failed items",
			zap.String("suggestion_id", suggestion.ID),
			zap.Error(itemErrs),
		)
	}
	return suggestionDTO(suggestion), itemErrs
}

// Reject marks a pending batch rejected without touching any entity.
func (s *SuggestionService) Reject(ctx context.Context, id string) (SuggestionDTO, error) {
	ctx = ensureContext(ctx)

	suggestion, err := s.fetch(ctx, id)
	if err != nil {
		return SuggestionDTO{}, err
	}
	if suggestion.Status != models.SuggestionStatusPending {
		return SuggestionDTO{}, apperrors.NewBadRequest("suggestion is " + suggestion.Status + ", not pending")
	}

	suggestion.Status = models.SuggestionStatusRejected
	if err := s.db.WithContext(ctx).Model(&suggestion).Update("status", suggestion.Status).Error; err != nil {
		return SuggestionDTO{}, fmt.Errorf("suggestion service: mark rejected: %w", err)
	}
	return suggestionDTO(suggestion), nil
}

// ExpireStale flips pending suggestions older than maxAge to expired and
// returns how many were affected. The maintenance cron calls this.
func (s *SuggestionService) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	ctx = ensureContext(ctx)

	cutoff := time.Now().Add(-maxAge)
	res := s.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Suggestion{}).
		Where("status = ? AND created_at < ?", models.SuggestionStatusPending, cutoff).
		Update("status", models.SuggestionStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("suggestion service: expire stale: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("expired stale suggestions", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// applyItem reconciles one item. Materials always become a new component;
// the singleton-flavored contexts (3d, wiring, document) append a version to
// the project's existing root when there is one.
func (s *SuggestionService) applyItem(ctx context.Context, projectID string, item *models.SuggestionItem) (string, error) {
	kind, ok := suggestionKinds[item.Context]
	if !ok {
		return "", apperrors.NewBadRequest("unknown suggestion context " + item.Context)
	}

	payload := decodePayload(item.Payload)
	shaped, err := shapeForKind(kind, payload)
	if err != nil {
		return "", err
	}

	if kind != models.KindComponent {
		k, err := kindFor(kind)
		if err != nil {
			return "", apperrors.NewBadRequest(err.Error())
		}
		root, err := k.firstRootByProject(s.db.WithContext(ctx), projectID)
		if err == nil {
			version, err := s.versions.AddVersion(ctx, kind, root.GetID(), shaped, models.AuthorAI)
			if err != nil {
				return "", err
			}
			return version.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("suggestion service: find %s root: %w", kind, err)
		}
	}

	entity, err := s.versions.CreateEntity(ctx, kind, projectID, shaped, models.AuthorAI)
	if err != nil {
		return "", err
	}
	if entity.CurrentVersionID == nil {
		return "", errors.New("suggestion service: created entity has no current version")
	}
	return *entity.CurrentVersionID, nil
}

// shapeForKind runs the same payload normalization the per-kind services use.
func shapeForKind(kind models.EntityKind, payload map[string]any) (map[string]any, error) {
	switch kind {
	case models.KindComponent:
		return shapeComponentPayload(payload)
	case models.KindRequirement:
		return shapeRequirementPayload(payload)
	case models.KindWiringSchema:
		return shapeWiringPayload(payload)
	case models.KindProduct3D:
		return shapeProduct3DPayload(payload)
	case models.KindDocument:
		return shapeDocumentPayload(payload)
	default:
		return nil, apperrors.NewBadRequest("unknown entity kind " + string(kind))
	}
}

func (s *SuggestionService) fetch(ctx context.Context, id string) (models.Suggestion, error) {
	var suggestion models.Suggestion
	err := s.db.WithContext(ensureContext(ctx)).
		Preload("Items").
		First(&suggestion, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Suggestion{}, apperrors.NewNotFound("suggestion not found")
		}
		return models.Suggestion{}, fmt.Errorf("suggestion service: fetch suggestion: %w", err)
	}
	return suggestion, nil
}

func suggestionDTO(s models.Suggestion) SuggestionDTO {
	dto := SuggestionDTO{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Prompt:    s.Prompt,
		Status:    s.Status,
		CreatedBy: s.CreatedBy,
		CreatedAt: s.CreatedAt,
		Items:     make([]SuggestionItemDTO, 0, len(s.Items)),
	}
	for _, item := range s.Items {
		dto.Items = append(dto.Items, SuggestionItemDTO{
			ID:               item.ID,
			Context:          item.Context,
			Payload:          decodePayload(item.Payload),
			Status:           item.Status,
			Error:            item.Error,
			AppliedVersionID: item.AppliedVersionID,
		})
	}
	return dto
}
