package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogStatus is the outcome recorded for one execution attempt.
type LogStatus string

const (
	LogSuccess   LogStatus = "success"
	LogError     LogStatus = "error"
	LogNoTrigger LogStatus = "no_trigger"
)

// TriggerLog is an append-only audit record of one execution attempt.
// TriggerID is nil when no trigger could be resolved (process-level failures, direct posts).
type TriggerLog struct {
	ID               string         `gorm:"primaryKey" json:"id"` // UUID
	TriggerID        *string        `gorm:"index" json:"trigger_id"`
	AgentID          string         `gorm:"index" json:"agent_id,omitempty"`
	UserID           string         `gorm:"index" json:"user_id,omitempty"`
	FunctionName     string         `gorm:"index" json:"function_name,omitempty"`
	Status           LogStatus      `gorm:"index" json:"status"`
	ExecutionTime    int64          `json:"execution_time"` // milliseconds
	ErrorDetails     string         `gorm:"type:text" json:"error_details,omitempty"`
	ConversationData datatypes.JSON `json:"conversation_data,omitempty"`
	FunctionData     datatypes.JSON `json:"function_data,omitempty"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
}

func (l *TriggerLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// LogStats holds write counters for the execution log.
type LogStats struct {
	Total     int64 `json:"total"`
	Success   int64 `json:"success"`
	Error     int64 `json:"error"`
	NoTrigger int64 `json:"no_trigger"`
	Deduped   int64 `json:"deduped"`
}
