package database

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/models"
)

// AutoMigrate creates or updates the database schema for all models. Roots
// must precede their version tables so foreign keys resolve during creation.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Requirement{},
		&models.RequirementVersion{},
		&models.Component{},
		&models.ComponentVersion{},
		&models.WiringSchema{},
		&models.WiringSchemaVersion{},
		&models.Product3D{},
		&models.Product3DVersion{},
		&models.Document{},
		&models.DocumentVersion{},
		&models.ChangeLog{},
		&models.Suggestion{},
		&models.SuggestionItem{},
	)
}

// SeedData inserts a default admin account when no users exist yet.
func SeedData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	return db.Create(&admin).Error
}
