package db

import (
	"fmt"
	"log/slog"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
)

// EnsureFunctions inserts catalog entries missing from the functions table.
// Existing rows are left untouched so edited descriptions survive restarts.
func EnsureFunctions(db *gorm.DB, defs []models.Function, logger *slog.Logger) (int, error) {
	created := 0
	for _, def := range defs {
		var count int64
		if err := db.Model(&models.Function{}).Where("name = ?", def.Name).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}
		row := def
		row.ID = 0
		if err := db.Create(&row).Error; err != nil {
			return created, fmt.Errorf("seed function %s: %w", def.Name, err)
		}
		created++
	}
	if created > 0 && logger != nil {
		logger.Info("seeded function catalog", "created", created, "total", len(defs))
	}
	return created, nil
}

// LoadFunctions returns every stored function ordered by name.
func LoadFunctions(db *gorm.DB) ([]models.Function, error) {
	var defs []models.Function
	if err := db.Order("name ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}
