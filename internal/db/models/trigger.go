package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunEvery is the unit of a trigger's interval.
type RunEvery string

const (
	RunEveryMinutes RunEvery = "minutes"
	RunEveryHours   RunEvery = "hours"
	RunEveryDays    RunEvery = "days"
)

// TriggerStatus is toggled by the owning user.
type TriggerStatus string

const (
	TriggerActive TriggerStatus = "active"
	TriggerPaused TriggerStatus = "paused"
)

// AgentTrigger is a recurring unit of autonomous work driven through one terminal function.
type AgentTrigger struct {
	ID                string        `gorm:"primaryKey" json:"id"` // UUID
	AgentID           string        `gorm:"index" json:"agent_id"`
	Agent             Agent         `gorm:"foreignKey:AgentID" json:"-"`
	FunctionName      string        `json:"function_name"`
	Interval          int           `json:"interval"`
	RunEvery          RunEvery      `json:"run_every"`
	InformationSource string        `gorm:"type:text" json:"information_source"`
	Status            TriggerStatus `gorm:"index;default:active" json:"status"`
	LastRunAt         *time.Time    `json:"last_run_at"`
	NextRunAt         *time.Time    `gorm:"index" json:"next_run_at"`
	ClaimedUntil      *time.Time    `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (t *AgentTrigger) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave stores schedule times in UTC. SQLite compares them as text, so
// rows written with any other offset would sort wrongly against due checks.
func (t *AgentTrigger) BeforeSave(*gorm.DB) error {
	t.LastRunAt = utcPtr(t.LastRunAt)
	t.NextRunAt = utcPtr(t.NextRunAt)
	t.ClaimedUntil = utcPtr(t.ClaimedUntil)
	return nil
}

// ScheduledTweetStatus values; everything except pending is terminal.
type ScheduledTweetStatus string

const (
	TweetPending   ScheduledTweetStatus = "pending"
	TweetCompleted ScheduledTweetStatus = "completed"
	TweetFailed    ScheduledTweetStatus = "failed"
	TweetCancelled ScheduledTweetStatus = "cancelled"
)

// ScheduledTweet is a one-shot direct post with no model involvement.
type ScheduledTweet struct {
	ID           string               `gorm:"primaryKey" json:"id"` // UUID
	AgentID      string               `gorm:"index" json:"agent_id"`
	Agent        Agent                `gorm:"foreignKey:AgentID" json:"-"`
	Content      string               `gorm:"type:text" json:"content"`
	MediaPath    string               `json:"media_path,omitempty"`
	ScheduledAt  time.Time            `gorm:"index" json:"scheduled_at"`
	Status       ScheduledTweetStatus `gorm:"index;default:pending" json:"status"`
	ProcessedAt  *time.Time           `json:"processed_at"`
	ErrorMessage string               `gorm:"type:text" json:"error_message,omitempty"`
	TweetID      string               `json:"tweet_id,omitempty"`
	ClaimedUntil *time.Time           `json:"-"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (s *ScheduledTweet) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave stores ScheduledAt and the other times in UTC, as AgentTrigger does.
func (s *ScheduledTweet) BeforeSave(*gorm.DB) error {
	s.ScheduledAt = s.ScheduledAt.UTC()
	s.ProcessedAt = utcPtr(s.ProcessedAt)
	s.ClaimedUntil = utcPtr(s.ClaimedUntil)
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Agent{},
		&AgentPlatform{},
		&AgentTrigger{},
		&ScheduledTweet{},
		&TriggerLog{},
		&Function{},
	}
}
