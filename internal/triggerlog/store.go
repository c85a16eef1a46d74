// Package triggerlog is the execution log: one row per trigger or direct-post
// attempt, plus the query views over it.
package triggerlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/util"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// MaxConversationSize caps the stored conversation transcript (1MB).
	MaxConversationSize = 1024 * 1024
	// MaxFunctionDataSize caps the stored function request/response (512KB).
	MaxFunctionDataSize = 512 * 1024

	DefaultLimit        = 100
	MaxLimit            = 1000
	DefaultDedupeWindow = 5 * time.Second
)

// sortColumns is the allow-list for ListForUser ordering.
var sortColumns = map[string]string{
	"created_at":     "created_at",
	"execution_time": "execution_time",
	"status":         "status",
	"function_name":  "function_name",
}

// Store writes and reads trigger logs and keeps write counters in memory.
type Store struct {
	db           *gorm.DB
	logger       *slog.Logger
	dedupeWindow time.Duration
	now          func() time.Time

	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	noTrigger atomic.Int64
	deduped   atomic.Int64
}

// NewStore returns a Store. dedupeWindow bounds CreateLogDeduped; zero
// disables suppression.
func NewStore(db *gorm.DB, logger *slog.Logger, dedupeWindow time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:           db,
		logger:       logger.With("component", "triggerlog"),
		dedupeWindow: dedupeWindow,
		now:          time.Now,
	}
	s.loadStats()
	return s
}

// CreateLog inserts entry unconditionally.
func (s *Store) CreateLog(ctx context.Context, entry *models.TriggerLog) error {
	s.prepare(entry)
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create trigger log: %w", err)
	}
	s.count(entry.Status)
	return nil
}

// CreateLogDeduped is CreateLog with best-effort duplicate suppression: when a
// row for the same trigger was written within the dedupe window, that row is
// returned instead and nothing is inserted. The boolean reports suppression.
// Entries without a trigger are always inserted.
func (s *Store) CreateLogDeduped(ctx context.Context, entry *models.TriggerLog) (*models.TriggerLog, bool, error) {
	if s.dedupeWindow > 0 && entry.TriggerID != nil {
		since := s.now().UTC().Add(-s.dedupeWindow)
		var existing models.TriggerLog
		err := s.db.WithContext(ctx).
			Where("trigger_id = ? AND created_at >= ?", *entry.TriggerID, since).
			Order("created_at DESC").
			Take(&existing).Error
		switch {
		case err == nil:
			s.deduped.Add(1)
			s.logger.Info("suppressed duplicate trigger log", "trigger_id", *entry.TriggerID, "existing_id", existing.ID)
			return &existing, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, fmt.Errorf("check recent trigger log: %w", err)
		}
	}
	if err := s.CreateLog(ctx, entry); err != nil {
		return nil, false, err
	}
	return entry, false, nil
}

// UpdateExecution backfills timing and payloads on an existing row.
func (s *Store) UpdateExecution(ctx context.Context, id string, executionMs int64, conversation, function datatypes.JSON) error {
	res := s.db.WithContext(ctx).Model(&models.TriggerLog{}).Where("id = ?", id).Updates(map[string]interface{}{
		"execution_time":    executionMs,
		"conversation_data": capJSON(conversation, MaxConversationSize),
		"function_data":     capJSON(function, MaxFunctionDataSize),
	})
	if res.Error != nil {
		return fmt.Errorf("update trigger log %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update trigger log %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) ByTrigger(ctx context.Context, triggerID string, limit int) ([]models.TriggerLog, error) {
	return s.newest(ctx, "trigger_id = ?", triggerID, limit)
}

func (s *Store) ByAgent(ctx context.Context, agentID string, limit int) ([]models.TriggerLog, error) {
	return s.newest(ctx, "agent_id = ?", agentID, limit)
}

func (s *Store) ByUser(ctx context.Context, userID string, limit int) ([]models.TriggerLog, error) {
	return s.newest(ctx, "user_id = ?", userID, limit)
}

func (s *Store) newest(ctx context.Context, cond, value string, limit int) ([]models.TriggerLog, error) {
	var logs []models.TriggerLog
	err := s.db.WithContext(ctx).
		Where(cond, value).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("query trigger logs: %w", err)
	}
	return logs, nil
}

// Query selects one page of a user's logs.
type Query struct {
	Page     int
	PageSize int
	SortBy   string
	Order    string
	Status   string
	Search   string
}

// Page is one page of logs plus the unpaged total.
type Page struct {
	Logs     []models.TriggerLog `json:"logs"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// ListForUser pages through userID's logs. SortBy outside the allow-list
// falls back to created_at.
func (s *Store) ListForUser(ctx context.Context, userID string, q Query) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = clampLimit(q.PageSize)

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(q.Order, "asc") {
		direction = "ASC"
	}

	query := s.db.WithContext(ctx).Model(&models.TriggerLog{}).Where("user_id = ?", userID)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("function_name LIKE ? OR error_details LIKE ?", pattern, pattern)
	}

	page := &Page{Page: q.Page, PageSize: q.PageSize}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("count trigger logs: %w", err)
	}
	err := query.
		Order(column + " " + direction).
		Order("id").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&page.Logs).Error
	if err != nil {
		return nil, fmt.Errorf("list trigger logs: %w", err)
	}
	return page, nil
}

// Stats returns counters of rows written since the store was opened, seeded
// from the table.
func (s *Store) Stats() models.LogStats {
	return models.LogStats{
		Total:     s.total.Load(),
		Success:   s.success.Load(),
		Error:     s.failed.Load(),
		NoTrigger: s.noTrigger.Load(),
		Deduped:   s.deduped.Load(),
	}
}

func (s *Store) prepare(entry *models.TriggerLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	entry.ErrorDetails = util.TruncateLog(entry.ErrorDetails, util.DefaultLogMaxLen)
	entry.ConversationData = capJSON(entry.ConversationData, MaxConversationSize)
	entry.FunctionData = capJSON(entry.FunctionData, MaxFunctionDataSize)
}

func (s *Store) count(status models.LogStatus) {
	s.total.Add(1)
	switch status {
	case models.LogSuccess:
		s.success.Add(1)
	case models.LogError:
		s.failed.Add(1)
	case models.LogNoTrigger:
		s.noTrigger.Add(1)
	}
}

func (s *Store) loadStats() {
	var total, success, failed, noTrigger int64
	s.db.Model(&models.TriggerLog{}).Count(&total)
	s.db.Model(&models.TriggerLog{}).Where("status = ?", models.LogSuccess).Count(&success)
	s.db.Model(&models.TriggerLog{}).Where("status = ?", models.LogError).Count(&failed)
	s.db.Model(&models.TriggerLog{}).Where("status = ?", models.LogNoTrigger).Count(&noTrigger)

	s.total.Store(total)
	s.success.Store(success)
	s.failed.Store(failed)
	s.noTrigger.Store(noTrigger)
	s.logger.Debug("loaded log stats", "total", total, "success", success, "error", failed, "no_trigger", noTrigger)
}

// capJSON replaces an oversized JSON payload with a marker object so the
// column stays valid JSON.
func capJSON(data datatypes.JSON, max int) datatypes.JSON {
	if len(data) <= max {
		return data
	}
	return datatypes.JSON(fmt.Sprintf(`{"truncated":true,"bytes":%d}`, len(data)))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
