package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/database/testutil"
	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

func newProjectTestEnv(t *testing.T) (*gorm.DB, *ProjectService, string) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	user := models.User{Username: "morgan", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)

	svc, err := NewProjectService(db)
	require.NoError(t, err)
	return db, svc, user.ID
}

func TestProjectCRUD(t *testing.T) {
	_, svc, ownerID := newProjectTestEnv(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateProjectInput{Name: "  Weather Station ", Description: "solar powered", OwnerUserID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, "Weather Station", created.Name)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	newName := "Weather Station v2"
	updated, err := svc.Update(ctx, created.ID, UpdateProjectInput{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, newName, updated.Name)
	assert.Equal(t, "solar powered", updated.Description)

	list, err := svc.List(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestProjectCreateRequiresName(t *testing.T) {
	_, svc, ownerID := newProjectTestEnv(t)

	_, err := svc.Create(context.Background(), CreateProjectInput{Name: "   ", OwnerUserID: ownerID})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestProjectDeleteUnknown(t *testing.T) {
	_, svc, _ := newProjectTestEnv(t)

	err := svc.Delete(context.Background(), "00000000-0000-0000-0000-000000000000")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestProjectDeleteCascades(t *testing.T) {
	db, svc, ownerID := newProjectTestEnv(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, CreateProjectInput{Name: "Robot Arm", OwnerUserID: ownerID})
	require.NoError(t, err)

	versions, err := NewVersionService(db)
	require.NoError(t, err)
	entity, err := versions.CreateEntity(ctx, models.KindComponent, project.ID, map[string]any{"name": "Servo"}, models.AuthorUser)
	require.NoError(t, err)
	_, err = versions.AddVersion(ctx, models.KindComponent, entity.ID, map[string]any{"name": "Servo", "torque": "20kg"}, models.AuthorUser)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, project.ID))

	var roots, versionRows, logRows int64
	require.NoError(t, db.Model(&models.Component{}).Count(&roots).Error)
	require.NoError(t, db.Model(&models.ComponentVersion{}).Count(&versionRows).Error)
	require.NoError(t, db.Model(&models.ChangeLog{}).Count(&logRows).Error)
	assert.Zero(t, roots)
	assert.Zero(t, versionRows)
	assert.Zero(t, logRows)
}

func TestProjectHistoryAcrossKinds(t *testing.T) {
	db, svc, ownerID := newProjectTestEnv(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, CreateProjectInput{Name: "Rover", OwnerUserID: ownerID})
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateProjectInput{Name: "Other", OwnerUserID: ownerID})
	require.NoError(t, err)

	versions, err := NewVersionService(db)
	require.NoError(t, err)

	component, err := versions.CreateEntity(ctx, models.KindComponent, project.ID, map[string]any{"name": "Wheel"}, models.AuthorUser)
	require.NoError(t, err)
	_, err = versions.AddVersion(ctx, models.KindComponent, component.ID, map[string]any{"name": "Wheel", "diameter": 120}, models.AuthorAI)
	require.NoError(t, err)
	doc, err := versions.CreateEntity(ctx, models.KindDocument, project.ID, map[string]any{"title": "Chassis notes"}, models.AuthorUser)
	require.NoError(t, err)
	_, err = versions.Validate(ctx, models.KindDocument, doc.ID, *doc.CurrentVersionID, DecisionAccept, models.AuthorUser)
	require.NoError(t, err)

	// Noise in another project must not leak into this history.
	_, err = versions.CreateEntity(ctx, models.KindComponent, other.ID, map[string]any{"name": "Decoy"}, models.AuthorUser)
	require.NoError(t, err)

	entries, total, err := svc.History(ctx, project.ID, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, entries, 4)

	kinds := map[models.EntityKind]int{}
	for _, entry := range entries {
		kinds[entry.Entity]++
		assert.NotEmpty(t, entry.VersionID)
		assert.NotEmpty(t, entry.Author)
	}
	assert.Equal(t, 2, kinds[models.KindComponent])
	assert.Equal(t, 2, kinds[models.KindDocument])
}

func TestProjectHistoryPagination(t *testing.T) {
	db, svc, ownerID := newProjectTestEnv(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, CreateProjectInput{Name: "Paginated", OwnerUserID: ownerID})
	require.NoError(t, err)

	versions, err := NewVersionService(db)
	require.NoError(t, err)
	entity, err := versions.CreateEntity(ctx, models.KindRequirement, project.ID, map[string]any{"name": "Weight"}, models.AuthorUser)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := versions.AddVersion(ctx, models.KindRequirement, entity.ID, map[string]any{"name": "Weight", "rev": i}, models.AuthorUser)
		require.NoError(t, err)
	}

	page1, total, err := svc.History(ctx, project.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page1, 2)

	page3, _, err := svc.History(ctx, project.ID, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestProjectHistoryUnknownProject(t *testing.T) {
	_, svc, _ := newProjectTestEnv(t)

	_, _, err := svc.History(context.Background(), "00000000-0000-0000-0000-000000000000", 1, 10)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}
