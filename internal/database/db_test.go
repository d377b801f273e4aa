package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unforkableco/fabrikator/internal/models"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenDefaultsToSQLiteInMemory(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	require.True(t, db.Migrator().HasTable(&models.ChangeLog{}))
	require.True(t, db.Migrator().HasTable("product3d_versions"))
}

func TestSeedDataCreatesDefaultAdminOnce(t *testing.T) {
	db, err := Open(Config{DSN: "file:seedtest?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrateAndSeed(db))
	require.NoError(t, SeedData(db)) // second run must be a no-op

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "fab", Name: "fabrikator", Host: "db", Port: 5433})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "fab", Password: "s3cret", Name: "fabrikator"})
	require.NoError(t, err)
	require.Contains(t, dsn, "fab:s3cret@tcp(127.0.0.1:3306)/fabrikator")
	require.Contains(t, dsn, "parseTime=True")
}
