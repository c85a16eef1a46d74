package models

import (
	"time"

	"gorm.io/datatypes"
)

// FunctionType separates terminal trigger functions from auxiliary agent tools.
type FunctionType string

const (
	FunctionTypeAgent   FunctionType = "agent"
	FunctionTypeTrigger FunctionType = "trigger"
)

// Function describes one callable capability offered to the model as a tool.
type Function struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex" json:"name"`
	Type        FunctionType   `gorm:"index" json:"type"`
	Description string         `gorm:"type:text" json:"description"`
	Parameters  datatypes.JSON `json:"parameters"` // JSON schema
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
