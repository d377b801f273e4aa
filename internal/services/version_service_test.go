package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/database/testutil"
	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
)

func newVersionTestEnv(t *testing.T) (*gorm.DB, *VersionService, string) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	user := models.User{Username: "casey", DisplayName: "Casey", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)

	project := models.Project{Name: "Delivery Drone", OwnerUserID: user.ID}
	require.NoError(t, db.Create(&project).Error)

	svc, err := NewVersionService(db)
	require.NoError(t, err)
	return db, svc, project.ID
}

func TestCreateEntitySetsVersionOneAndCurrentPointer(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)

	entity, err := svc.CreateEntity(context.Background(), models.KindComponent, projectID, map[string]any{
		"name":     "ESC 40A",
		"quantity": 4,
	}, models.AuthorUser)
	require.NoError(t, err)

	assert.Equal(t, models.KindComponent, entity.Kind)
	assert.Equal(t, projectID, entity.ProjectID)
	require.NotNil(t, entity.CurrentVersionID)
	require.NotNil(t, entity.CurrentVersion)
	assert.Equal(t, 1, entity.CurrentVersion.VersionNumber)
	assert.Equal(t, *entity.CurrentVersionID, entity.CurrentVersion.ID)
	assert.Equal(t, "ESC 40A", entity.CurrentVersion.Payload["name"])

	var entry models.ChangeLog
	require.NoError(t, db.First(&entry, "component_version_id = ?", entity.CurrentVersion.ID).Error)
	assert.Equal(t, models.ChangeTypeCreate, entry.ChangeType)
	assert.Equal(t, models.AuthorUser, entry.Author)

	diff := decodePayload(entry.DiffPayload)
	assert.Equal(t, "new_version", diff["type"])
	assert.Equal(t, "add", diff["action"])
	assert.EqualValues(t, 1, diff["versionNumber"])
}

func TestCreateEntityUnknownProject(t *testing.T) {
	_, svc, _ := newVersionTestEnv(t)

	_, err := svc.CreateEntity(context.Background(), models.KindDocument, "00000000-0000-0000-0000-000000000000", map[string]any{"title": "x"}, models.AuthorUser)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestCreateEntityUnknownKind(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)

	_, err := svc.CreateEntity(context.Background(), models.EntityKind("sprocket"), projectID, nil, models.AuthorUser)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestAddVersionAdvancesChainAndPointer(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindRequirement, projectID, map[string]any{"name": "Flight time"}, models.AuthorUser)
	require.NoError(t, err)

	v2, err := svc.AddVersion(ctx, models.KindRequirement, entity.ID, map[string]any{"name": "Flight time", "target": "30min"}, models.AuthorAI)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, models.AuthorAI, v2.CreatedBy)

	v3, err := svc.AddVersion(ctx, models.KindRequirement, entity.ID, map[string]any{"name": "Flight time", "target": "35min"}, models.AuthorUser)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)

	refreshed, err := svc.GetEntity(ctx, models.KindRequirement, entity.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.CurrentVersionID)
	assert.Equal(t, v3.ID, *refreshed.CurrentVersionID)

	var count int64
	require.NoError(t, db.Model(&models.ChangeLog{}).
		Where("entity = ? AND change_type = ?", models.KindRequirement, models.ChangeTypeUpdate).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestAddVersionUnknownRoot(t *testing.T) {
	_, svc, _ := newVersionTestEnv(t)

	_, err := svc.AddVersion(context.Background(), models.KindComponent, "00000000-0000-0000-0000-000000000000", nil, models.AuthorUser)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestValidateAcceptRewindsPointer(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindWiringSchema, projectID, map[string]any{"nodes": []any{}, "edges": []any{}}, models.AuthorUser)
	require.NoError(t, err)
	v1 := entity.CurrentVersion

	v2, err := svc.AddVersion(ctx, models.KindWiringSchema, entity.ID, map[string]any{"nodes": []any{"battery"}, "edges": []any{}}, models.AuthorAI)
	require.NoError(t, err)

	// Accept v1 again: the pointer rewinds while both versions stay immutable.
	accepted, err := svc.Validate(ctx, models.KindWiringSchema, entity.ID, v1.ID, DecisionAccept, models.AuthorUser)
	require.NoError(t, err)
	require.NotNil(t, accepted.CurrentVersionID)
	assert.Equal(t, v1.ID, *accepted.CurrentVersionID)

	history, err := svc.ListHistory(ctx, models.KindWiringSchema, entity.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v2.ID, history[0].ID)

	var entry models.ChangeLog
	require.NoError(t, db.Where("change_type = ? AND wiring_schema_version_id = ?", models.ChangeTypeValidate, v1.ID).First(&entry).Error)
	diff := decodePayload(entry.DiffPayload)
	assert.Equal(t, "validate_version", diff["type"])
	assert.Equal(t, "accept", diff["action"])
	assert.EqualValues(t, 1, diff["versionNumber"])
}

func TestValidateRejectLeavesPointer(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindProduct3D, projectID, map[string]any{"format": "cadquery"}, models.AuthorUser)
	require.NoError(t, err)

	v2, err := svc.AddVersion(ctx, models.KindProduct3D, entity.ID, map[string]any{"format": "cadquery", "height": 12}, models.AuthorAI)
	require.NoError(t, err)

	rejected, err := svc.Validate(ctx, models.KindProduct3D, entity.ID, v2.ID, DecisionReject, models.AuthorUser)
	require.NoError(t, err)
	require.NotNil(t, rejected.CurrentVersionID)
	assert.Equal(t, v2.ID, *rejected.CurrentVersionID)

	var entry models.ChangeLog
	require.NoError(t, db.Where("change_type = ? AND product3d_version_id = ?", models.ChangeTypeValidate, v2.ID).First(&entry).Error)
	diff := decodePayload(entry.DiffPayload)
	assert.Equal(t, "reject", diff["action"])
}

func TestValidateRejectsForeignVersion(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	a, err := svc.CreateEntity(ctx, models.KindDocument, projectID, map[string]any{"title": "Manual A"}, models.AuthorUser)
	require.NoError(t, err)
	b, err := svc.CreateEntity(ctx, models.KindDocument, projectID, map[string]any{"title": "Manual B"}, models.AuthorUser)
	require.NoError(t, err)

	// A version id from another chain must not move this root's pointer.
	_, err = svc.Validate(ctx, models.KindDocument, a.ID, *b.CurrentVersionID, DecisionAccept, models.AuthorUser)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)

	unchanged, err := svc.GetEntity(ctx, models.KindDocument, a.ID)
	require.NoError(t, err)
	assert.Equal(t, *a.CurrentVersionID, *unchanged.CurrentVersionID)
}

func TestValidateBadDecision(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": "Frame"}, models.AuthorUser)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, models.KindComponent, entity.ID, *entity.CurrentVersionID, Decision("maybe"), models.AuthorUser)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestNextVersionNumber(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": "Motor"}, models.AuthorUser)
	require.NoError(t, err)

	next, err := svc.NextVersionNumber(ctx, models.KindComponent, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	_, err = svc.NextVersionNumber(ctx, models.KindComponent, "00000000-0000-0000-0000-000000000000")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestListHistoryNewestFirst(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindDocument, projectID, map[string]any{"title": "BOM"}, models.AuthorUser)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.AddVersion(ctx, models.KindDocument, entity.ID, map[string]any{"title": "BOM", "rev": i}, models.AuthorUser)
		require.NoError(t, err)
	}

	history, err := svc.ListHistory(ctx, models.KindDocument, entity.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, v := range history {
		assert.Equal(t, 4-i, v.VersionNumber)
	}
}

func TestListByProjectIncludesCurrentPayloads(t *testing.T) {
	_, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"Motor", "Frame", "Battery"} {
		_, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": name}, models.AuthorUser)
		require.NoError(t, err)
	}

	components, err := svc.ListByProject(ctx, models.KindComponent, projectID)
	require.NoError(t, err)
	require.Len(t, components, 3)
	for _, c := range components {
		require.NotNil(t, c.CurrentVersion)
		assert.NotEmpty(t, c.CurrentVersion.Payload["name"])
	}
}

// A create callback that claims the candidate number inside the same
// transaction turns every insert into a unique-constraint collision: the
// rollback removes the blocker, so each retry collides again until the
// budget runs out.
func TestAddVersionExhaustsRetryBudget(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": "Prop"}, models.AuthorUser)
	require.NoError(t, err)

	var injecting bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test_claim_number", func(tx *gorm.DB) {
		if injecting {
			return
		}
		version, ok := tx.Statement.Dest.(*models.ComponentVersion)
		if !ok {
			return
		}
		injecting = true
		defer func() { injecting = false }()
		blocker := models.ComponentVersion{
			ComponentID:   version.ComponentID,
			VersionNumber: version.VersionNumber,
			CreatedBy:     models.AuthorUser,
		}
		_ = tx.Session(&gorm.Session{NewDB: true}).Create(&blocker).Error
	}))
	t.Cleanup(func() {
		require.NoError(t, db.Callback().Create().Remove("test_claim_number"))
	})

	var attempts []int
	svc.onConflict = func(kind models.EntityKind, rootID string, attempt int) {
		attempts = append(attempts, attempt)
	}

	_, err = svc.AddVersion(ctx, models.KindComponent, entity.ID, map[string]any{"name": "Prop", "pitch": 4.5}, models.AuthorUser)
	require.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, attempts)
}

// Same trick, but the blocker only fires twice: the third attempt lands with
// an attempt-offset number, leaving a gap behind instead of a duplicate.
func TestAddVersionRecoversAfterCollisions(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": "Arm"}, models.AuthorUser)
	require.NoError(t, err)

	var injecting bool
	collisions := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test_claim_number", func(tx *gorm.DB) {
		if injecting || collisions >= 2 {
			return
		}
		version, ok := tx.Statement.Dest.(*models.ComponentVersion)
		if !ok {
			return
		}
		injecting = true
		defer func() { injecting = false }()
		collisions++
		blocker := models.ComponentVersion{
			ComponentID:   version.ComponentID,
			VersionNumber: version.VersionNumber,
			CreatedBy:     models.AuthorUser,
		}
		_ = tx.Session(&gorm.Session{NewDB: true}).Create(&blocker).Error
	}))
	t.Cleanup(func() {
		require.NoError(t, db.Callback().Create().Remove("test_claim_number"))
	})

	v, err := svc.AddVersion(ctx, models.KindComponent, entity.ID, map[string]any{"name": "Arm", "length": 180}, models.AuthorUser)
	require.NoError(t, err)
	assert.Equal(t, 4, v.VersionNumber)
}

func TestAddVersionConcurrentWritersNeverDuplicate(t *testing.T) {
	db, svc, projectID := newVersionTestEnv(t)
	ctx := context.Background()

	// One pooled connection serializes SQLite writes without masking the
	// allocator race: every goroutine still reads its candidate number
	// before its insert transaction begins.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	entity, err := svc.CreateEntity(ctx, models.KindComponent, projectID, map[string]any{"name": "Stack"}, models.AuthorUser)
	require.NoError(t, err)

	var mu sync.Mutex
	maxAttempt := 0
	svc.onConflict = func(kind models.EntityKind, rootID string, attempt int) {
		mu.Lock()
		if attempt > maxAttempt {
			maxAttempt = attempt
		}
		mu.Unlock()
	}

	const writers = 10
	var wg sync.WaitGroup
	results := make([]VersionDTO, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.AddVersion(ctx, models.KindComponent, entity.ID, map[string]any{"name": "Stack", "writer": i}, models.AuthorUser)
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	succeeded := 0
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			require.ErrorIs(t, errs[i], apperrors.ErrVersionConflict)
			continue
		}
		succeeded++
		assert.False(t, seen[results[i].VersionNumber], "duplicate version number %d", results[i].VersionNumber)
		seen[results[i].VersionNumber] = true
	}
	assert.Greater(t, succeeded, 0)
	assert.LessOrEqual(t, maxAttempt, addVersionMaxAttempts)

	// The stored chain agrees: one row per claimed number.
	var numbers []int
	require.NoError(t, db.Model(&models.ComponentVersion{}).
		Where("component_id = ?", entity.ID).
		Order("version_number").
		Pluck("version_number", &numbers).Error)
	for i := 1; i < len(numbers); i++ {
		assert.Greater(t, numbers[i], numbers[i-1])
	}
	assert.Len(t, numbers, succeeded+1)
}
