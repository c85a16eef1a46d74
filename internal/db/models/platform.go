package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlatformTwitter is the only platform type the schedulers post through.
const PlatformTwitter = "twitter"

// AgentStatus gates whether an agent's triggers execute.
type AgentStatus string

const (
	AgentPaused  AgentStatus = "paused"
	AgentRunning AgentStatus = "running"
)

// Agent is an autonomous identity owned by exactly one user.
type Agent struct {
	ID          string          `gorm:"primaryKey" json:"id"` // UUID
	UserID      string          `gorm:"index" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"-"`
	Name        string          `json:"name"`
	Goal        string          `gorm:"type:text" json:"goal"`
	Description string          `gorm:"type:text" json:"description"`
	Status      AgentStatus     `gorm:"index;default:paused" json:"status"`
	Platforms   []AgentPlatform `gorm:"foreignKey:AgentID" json:"platforms,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (a *Agent) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsRunning reports whether the agent's due triggers may execute.
func (a Agent) IsRunning() bool {
	return a.Status == AgentRunning
}

// AgentPlatform binds an agent to an external account and its OAuth credentials.
// Token refresh writes back to this row so rotated credentials survive restarts.
type AgentPlatform struct {
	ID              string    `gorm:"primaryKey" json:"id"` // UUID
	AgentID         string    `gorm:"index:idx_agent_platform" json:"agent_id"`
	Platform        string    `gorm:"index:idx_agent_platform" json:"platform"` // e.g., "twitter"
	AccountID       string    `json:"account_id,omitempty"`
	Username        string    `json:"username,omitempty"`
	AccessToken     string    `json:"-"`
	RefreshToken    string    `json:"-"`
	ExpiresIn       int       `json:"expires_in"` // seconds, as returned by the token endpoint
	ExpiryTimestamp time.Time `json:"expiry_timestamp"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p *AgentPlatform) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
