package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/ai"
	"github.com/unforkableco/fabrikator/internal/database/testutil"
	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

type stubGenerator struct {
	items []ai.ProposedItem
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, projectName, prompt string) ([]ai.ProposedItem, error) {
	return s.items, s.err
}

func newSuggestionTestEnv(t *testing.T, gen ai.Generator) (*gorm.DB, *SuggestionService, *VersionService, string) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	user := models.User{Username: "riley", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	project := models.Project{Name: "Greenhouse Controller", OwnerUserID: user.ID}
	require.NoError(t, db.Create(&project).Error)

	versions, err := NewVersionService(db)
	require.NoError(t, err)
	svc, err := NewSuggestionService(db, versions, gen)
	require.NoError(t, err)
	return db, svc, versions, project.ID
}

func TestProposeWithExplicitItems(t *testing.T) {
	_, svc, _, projectID := newSuggestionTestEnv(t, nil)

	dto, err := svc.Propose(context.Background(), projectID, "initial BOM", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "DHT22 sensor", "quantity": 2}},
		{Context: models.SuggestionContextDocument, Payload: map[string]any{"title": "Sensor placement"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusPending, dto.Status)
	require.Len(t, dto.Items, 2)
	assert.Equal(t, models.SuggestionItemPending, dto.Items[0].Status)
}

func TestProposeUsesGenerator(t *testing.T) {
	gen := &stubGenerator{items: []ai.ProposedItem{
		{Context: models.SuggestionContextWiring, Payload: map[string]any{"nodes": []any{"pump"}, "edges": []any{}}},
	}}
	_, svc, _, projectID := newSuggestionTestEnv(t, gen)

	dto, err := svc.Propose(context.Background(), projectID, "wire the pump", "riley", nil)
	require.NoError(t, err)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, models.SuggestionContextWiring, dto.Items[0].Context)
}

func TestProposeGeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	_, svc, _, projectID := newSuggestionTestEnv(t, gen)

	_, err := svc.Propose(context.Background(), projectID, "anything", "riley", nil)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AI_GENERATION_FAILED", appErr.Code)
}

func TestProposeRejectsUnknownContext(t *testing.T) {
	_, svc, _, projectID := newSuggestionTestEnv(t, nil)

	_, err := svc.Propose(context.Background(), projectID, "", "riley", []ai.ProposedItem{
		{Context: "firmware", Payload: map[string]any{}},
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestProposeUnknownProject(t *testing.T) {
	_, svc, _, _ := newSuggestionTestEnv(t, nil)

	_, err := svc.Propose(context.Background(), "00000000-0000-0000-0000-000000000000", "", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "x"}},
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestAcceptCreatesComponentsPerItem(t *testing.T) {
	_, svc, versions, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	dto, err := svc.Propose(ctx, projectID, "BOM", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "Relay board"}},
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "Soil probe", "quantity": 3}},
	})
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusAccepted, accepted.Status)
	for _, item := range accepted.Items {
		assert.Equal(t, models.SuggestionItemApplied, item.Status)
		require.NotNil(t, item.AppliedVersionID)
	}

	components, err := versions.ListByProject(ctx, models.KindComponent, projectID)
	require.NoError(t, err)
	assert.Len(t, components, 2)
	for _, c := range components {
		require.NotNil(t, c.CurrentVersion)
		assert.Equal(t, models.AuthorAI, c.CurrentVersion.CreatedBy)
	}
}

func TestAcceptAppendsToExistingSingletonRoot(t *testing.T) {
	_, svc, versions, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	schema, err := versions.CreateEntity(ctx, models.KindWiringSchema, projectID, map[string]any{"nodes": []any{}, "edges": []any{}}, models.AuthorUser)
	require.NoError(t, err)

	dto, err := svc.Propose(ctx, projectID, "rewire", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextWiring, Payload: map[string]any{"nodes": []any{"fan"}, "edges": []any{}}},
	})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, dto.ID)
	require.NoError(t, err)

	history, err := versions.ListHistory(ctx, models.KindWiringSchema, schema.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.AuthorAI, history[0].CreatedBy)

	schemas, err := versions.ListByProject(ctx, models.KindWiringSchema, projectID)
	require.NoError(t, err)
	assert.Len(t, schemas, 1)
}

func TestAcceptIsBestEffortPerItem(t *testing.T) {
	_, svc, versions, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	// The document item is missing its title and must fail without
	// blocking the material item.
	dto, err := svc.Propose(ctx, projectID, "mixed", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextDocument, Payload: map[string]any{"content": "orphan body"}},
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "Fuse"}},
	})
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, dto.ID)
	require.Error(t, err)
	assert.Equal(t, models.SuggestionStatusAccepted, accepted.Status)

	byContext := map[string]SuggestionItemDTO{}
	for _, item := range accepted.Items {
		byContext[item.Context] = item
	}
	assert.Equal(t, models.SuggestionItemFailed, byContext[models.SuggestionContextDocument].Status)
	assert.NotEmpty(t, byContext[models.SuggestionContextDocument].Error)
	assert.Equal(t, models.SuggestionItemApplied, byContext[models.SuggestionContextMaterials].Status)

	components, err := versions.ListByProject(ctx, models.KindComponent, projectID)
	require.NoError(t, err)
	assert.Len(t, components, 1)
}

func TestAcceptOnlyPending(t *testing.T) {
	_, svc, _, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	dto, err := svc.Propose(ctx, projectID, "", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "LED"}},
	})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, dto.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, dto.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestRejectLeavesEntitiesUntouched(t *testing.T) {
	_, svc, versions, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	dto, err := svc.Propose(ctx, projectID, "", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "Buzzer"}},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusRejected, rejected.Status)

	components, err := versions.ListByProject(ctx, models.KindComponent, projectID)
	require.NoError(t, err)
	assert.Empty(t, components)
}

func TestExpireStale(t *testing.T) {
	db, svc, _, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	stale, err := svc.Propose(ctx, projectID, "old", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "Old part"}},
	})
	require.NoError(t, err)
	fresh, err := svc.Propose(ctx, projectID, "new", "riley", []ai.ProposedItem{
		{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": "New part"}},
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Suggestion{}).
		Where("id = ?", stale.ID).
		UpdateColumn("created_at", time.Now().Add(-48*time.Hour)).Error)

	count, err := svc.ExpireStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	expired, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusExpired, expired.Status)

	pending, err := svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusPending, pending.Status)
}

func TestListNewestFirst(t *testing.T) {
	_, svc, _, projectID := newSuggestionTestEnv(t, nil)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := svc.Propose(ctx, projectID, name, "riley", []ai.ProposedItem{
			{Context: models.SuggestionContextMaterials, Payload: map[string]any{"name": name}},
		})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, s := range list {
		require.Len(t, s.Items, 1)
	}
}
