package db

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// GenerateAPIKey returns a new random key of the form sk-<32 hex chars>.
func GenerateAPIKey() string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	return "sk-" + hex.EncodeToString(keyBytes)
}

// RegenerateAPIKey rotates the API key of the user identified by ID or email.
func RegenerateAPIKey(db *gorm.DB, identifier string) (string, error) {
	var user models.User
	if err := db.Where("id = ? OR email = ?", identifier, identifier).First(&user).Error; err != nil {
		return "", fmt.Errorf("user not found: %s", identifier)
	}

	apiKey := GenerateAPIKey()
	if err := db.Model(&user).Update("api_key", apiKey).Error; err != nil {
		return "", err
	}
	return apiKey, nil
}

// UserByAPIKey resolves the owner of an API key. Empty keys never match.
func UserByAPIKey(db *gorm.DB, apiKey string) (*models.User, error) {
	if apiKey == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := db.Where("api_key = ?", apiKey).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
