package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User owns agents and authenticates the admin API with its API key.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"` // UUID
	Email     string    `gorm:"uniqueIndex" json:"email"`
	APIKey    string    `gorm:"index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
