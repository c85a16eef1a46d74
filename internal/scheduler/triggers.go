package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/orchestrator"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/pysugar/agent-nexus/internal/util"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrFunctionNotFound means the trigger names no stored trigger function.
	ErrFunctionNotFound = errors.New("trigger function not found")
	ErrTriggerNotFound  = errors.New("trigger not found")
	// ErrTriggerBusy means another cycle currently holds the trigger's claim.
	ErrTriggerBusy = errors.New("trigger is already being processed")
)

// Conversation runs one trigger execution.
type Conversation interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

type TriggerScheduler struct {
	db           *gorm.DB
	logs         *triggerlog.Store
	conversation Conversation
	social       SocialFactory
	claimTTL     time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewTriggerScheduler(
	db *gorm.DB,
	logs *triggerlog.Store,
	conversation Conversation,
	social SocialFactory,
	claimTTL time.Duration,
	logger *slog.Logger,
) *TriggerScheduler {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerScheduler{
		db:           db,
		logs:         logs,
		conversation: conversation,
		social:       social,
		claimTTL:     claimTTL,
		logger:       logger.With("component", "trigger_scheduler"),
		now:          time.Now,
	}
}

// ProcessPendingTriggers runs every active, due trigger whose agent is
// running, one at a time, and returns how many were processed. Triggers of
// paused agents are left untouched. A failing poll is written to the log as
// no_trigger and never panics out.
func (s *TriggerScheduler) ProcessPendingTriggers(ctx context.Context) (processed int) {
	defer func() {
		if r := recover(); r != nil {
			s.logPollFailure(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	now := s.now().UTC()
	var due []models.AgentTrigger
	err := s.db.WithContext(ctx).
		Preload("Agent.User").
		Where("status = ? AND next_run_at <= ?", models.TriggerActive, now).
		Order("next_run_at").
		Find(&due).Error
	if err != nil {
		s.logPollFailure(ctx, fmt.Errorf("query due triggers: %w", err))
		return 0
	}

	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		if !t.Agent.IsRunning() {
			s.logger.Debug("agent not running, skipping due trigger", "trigger_id", t.ID, "agent_id", t.AgentID)
			continue
		}
		// Leases start when each item is claimed; earlier items may have run long.
		ok, err := s.claim(ctx, t.ID, s.now().UTC())
		if err != nil {
			s.logger.Error("failed to claim trigger", "trigger_id", t.ID, "error", err)
			continue
		}
		if !ok {
			s.logger.Debug("trigger claimed elsewhere", "trigger_id", t.ID)
			continue
		}
		s.process(ctx, t, false)
		processed++
	}
	if processed > 0 {
		s.logger.Info("processed due triggers", "count", processed, "due", len(due))
	}
	return processed
}

// RunTrigger executes one of userID's triggers now, regardless of its
// schedule. It does not move NextRunAt and writes its log through the
// deduplicating path.
func (s *TriggerScheduler) RunTrigger(ctx context.Context, triggerID, userID string) (*models.TriggerLog, error) {
	var t models.AgentTrigger
	err := s.db.WithContext(ctx).Preload("Agent.User").Where("id = ?", triggerID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && t.Agent.UserID != userID) {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load trigger %s: %w", triggerID, err)
	}

	ok, err := s.claim(ctx, t.ID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim trigger %s: %w", triggerID, err)
	}
	if !ok {
		return nil, ErrTriggerBusy
	}
	return s.process(ctx, t, true), nil
}

func (s *TriggerScheduler) claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.AgentTrigger{}).
		Where("id = ? AND (claimed_until IS NULL OR claimed_until <= ?)", id, now).
		Update("claimed_until", now.Add(s.claimTTL))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// process runs one claimed trigger. The schedule is advanced whatever the
// outcome, then the attempt is logged.
func (s *TriggerScheduler) process(ctx context.Context, t models.AgentTrigger, manual bool) *models.TriggerLog {
	start := s.now().UTC()
	execID := logging.NewExecutionID()
	ctx = logging.WithExecutionID(ctx, execID)
	logger := logging.FromContext(ctx, s.logger).With("trigger_id", t.ID, "agent_id", t.AgentID, "function", t.FunctionName)

	outcome, err := s.execute(ctx, logger, t)
	s.advance(ctx, logger, t, start, manual)

	entry := &models.TriggerLog{
		TriggerID:    &t.ID,
		AgentID:      t.AgentID,
		UserID:       t.Agent.UserID,
		FunctionName: t.FunctionName,
		Status:       models.LogSuccess,
		ErrorDetails: util.ErrorText(err),
	}
	if err != nil {
		entry.Status = models.LogError
		logger.Error("trigger execution failed", "error", err)
	} else {
		logger.Info("trigger executed")
	}
	if outcome != nil {
		entry.ConversationData = toJSON(map[string]interface{}{"turns": outcome.Turns, "messages": outcome.Messages})
		entry.FunctionData = toJSON(map[string]interface{}{"name": t.FunctionName, "calls": outcome.Calls, "result": outcome.Result})
	}
	entry.Metadata = toJSON(map[string]interface{}{"executionId": execID, "manual": manual})
	entry.ExecutionTime = s.now().UTC().Sub(start).Milliseconds()

	if manual {
		stored, deduped, werr := s.logs.CreateLogDeduped(ctx, entry)
		if werr != nil {
			logger.Error("failed to write trigger log", "error", werr)
			return entry
		}
		if deduped {
			logger.Info("manual run log matched a recent entry", "log_id", stored.ID)
		}
		return stored
	}
	if werr := s.logs.CreateLog(ctx, entry); werr != nil {
		logger.Error("failed to write trigger log", "error", werr)
	}
	return entry
}

func (s *TriggerScheduler) execute(ctx context.Context, logger *slog.Logger, t models.AgentTrigger) (out *orchestrator.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("trigger panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var fn models.Function
	err = s.db.WithContext(ctx).Where("name = ? AND type = ?", t.FunctionName, models.FunctionTypeTrigger).Take(&fn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, t.FunctionName)
	}
	if err != nil {
		return nil, fmt.Errorf("load function %s: %w", t.FunctionName, err)
	}

	platform, err := findPlatform(ctx, s.db, t.AgentID)
	if err != nil {
		return nil, err
	}

	var tools []models.Function
	if err := s.db.WithContext(ctx).Where("type = ?", models.FunctionTypeAgent).Order("name").Find(&tools).Error; err != nil {
		return nil, fmt.Errorf("load agent functions: %w", err)
	}
	tools = append(tools, fn)

	return s.conversation.Run(ctx, orchestrator.Request{
		Agent:     t.Agent,
		Trigger:   t,
		Terminal:  fn,
		Tools:     tools,
		Execution: functions.NewExecution(t.AgentID, t.ID, s.social.ForPlatform(*platform)),
	})
}

func (s *TriggerScheduler) advance(ctx context.Context, logger *slog.Logger, t models.AgentTrigger, start time.Time, manual bool) {
	updates := map[string]interface{}{
		"last_run_at":   start,
		"claimed_until": nil,
	}
	if !manual {
		updates["next_run_at"] = NextRunAt(start, t.Interval, t.RunEvery)
	}
	// A cancelled ctx must not leave the trigger claimed and unadvanced.
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.AgentTrigger{}).Where("id = ?", t.ID).Updates(updates).Error
	if err != nil {
		logger.Error("failed to advance trigger schedule", "error", err)
	}
}

func (s *TriggerScheduler) logPollFailure(ctx context.Context, err error) {
	s.logger.Error("trigger poll failed", "error", err)
	entry := &models.TriggerLog{
		Status:       models.LogNoTrigger,
		ErrorDetails: util.ErrorText(err),
		Metadata:     toJSON(map[string]interface{}{"stack": string(debug.Stack())}),
	}
	if werr := s.logs.CreateLog(context.WithoutCancel(ctx), entry); werr != nil {
		s.logger.Error("failed to write poll failure log", "error", werr)
	}
}

func toJSON(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return datatypes.JSON(data)
}
