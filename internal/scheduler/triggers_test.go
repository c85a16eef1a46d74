package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/orchestrator"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oneShotChat struct {
	reply    openai.ChatCompletionMessage
	requests int
}

func (c *oneShotChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.requests++
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: c.reply}}}, nil
}

func TestProcessPendingTriggers_SuccessfulRunAdvancesSchedule(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	tr := f.addTrigger(t, nil)

	chat := &oneShotChat{reply: openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "call-1",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "post_tweet", Arguments: `{"text":"SOL looks strong today"}`},
		}},
	}}
	conv := orchestrator.New(chat, functions.NewRegistry(functions.Deps{Logger: logging.Discard()}), orchestrator.Config{Model: "test"}, logging.Discard())

	processed := f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, chat.requests)
	assert.Equal(t, []string{"SOL looks strong today"}, f.factory.social.posts)
	assert.Equal(t, []string{f.platform.ID}, f.factory.platforms)

	got := f.reloadTrigger(t, tr.ID)
	require.NotNil(t, got.NextRunAt)
	require.NotNil(t, got.LastRunAt)
	assert.WithinDuration(t, testNow.Add(5*time.Minute), *got.NextRunAt, time.Millisecond)
	assert.WithinDuration(t, testNow, *got.LastRunAt, time.Millisecond)
	assert.Nil(t, got.ClaimedUntil, "lease released")

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogSuccess, logs[0].Status)
	require.NotNil(t, logs[0].TriggerID)
	assert.Equal(t, tr.ID, *logs[0].TriggerID)
	assert.Equal(t, f.user.ID, logs[0].UserID)
	assert.Equal(t, "post_tweet", logs[0].FunctionName)

	var fn struct {
		Name   string            `json:"name"`
		Result *functions.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(logs[0].FunctionData, &fn))
	assert.True(t, fn.Result.Success)
	assert.Contains(t, string(logs[0].ConversationData), "SOL looks strong today")
}

func TestProcessPendingTriggers_FailedRunStillAdvances(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	tr := f.addTrigger(t, func(tr *models.AgentTrigger) {
		tr.Interval = 2
		tr.RunEvery = models.RunEveryHours
	})
	conv := &fakeConversation{err: orchestrator.ErrTerminalNotCalled}

	f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())
	require.Len(t, conv.calls, 1)

	got := f.reloadTrigger(t, tr.ID)
	assert.WithinDuration(t, testNow.Add(2*time.Hour), *got.NextRunAt, time.Millisecond)
	assert.WithinDuration(t, testNow, *got.LastRunAt, time.Millisecond)

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogError, logs[0].Status)
	assert.Contains(t, logs[0].ErrorDetails, "did not call the required function")
}

func TestProcessPendingTriggers_PausedAgentStalls(t *testing.T) {
	f := newFixture(t, models.AgentPaused)
	tr := f.addTrigger(t, nil)
	conv := &fakeConversation{}

	assert.Zero(t, f.triggerScheduler(conv).ProcessPendingTriggers(context.Background()))
	assert.Empty(t, conv.calls)

	got := f.reloadTrigger(t, tr.ID)
	assert.WithinDuration(t, *tr.NextRunAt, *got.NextRunAt, time.Millisecond)
	assert.Nil(t, got.LastRunAt)
	assert.Nil(t, got.ClaimedUntil)
	assert.Empty(t, f.allLogs(t))
}

func TestProcessPendingTriggers_SkipsNotDuePausedAndClaimed(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	future := testNow.Add(time.Minute)
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.NextRunAt = &future })
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.Status = models.TriggerPaused })
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.NextRunAt = nil })
	held := testNow.Add(30 * time.Second)
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.ClaimedUntil = &held })
	conv := &fakeConversation{}

	assert.Zero(t, f.triggerScheduler(conv).ProcessPendingTriggers(context.Background()))
	assert.Empty(t, conv.calls)
}

func TestProcessPendingTriggers_ExpiredClaimIsTakenOver(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	stale := testNow.Add(-time.Second)
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.ClaimedUntil = &stale })
	conv := &fakeConversation{}

	assert.Equal(t, 1, f.triggerScheduler(conv).ProcessPendingTriggers(context.Background()))
}

func TestProcessPendingTriggers_MissingFunction(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	tr := f.addTrigger(t, func(tr *models.AgentTrigger) { tr.FunctionName = "get_mentions" })
	conv := &fakeConversation{}

	f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())
	assert.Empty(t, conv.calls)

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogError, logs[0].Status)
	assert.Contains(t, logs[0].ErrorDetails, "trigger function not found: get_mentions")
	assert.WithinDuration(t, testNow.Add(5*time.Minute), *f.reloadTrigger(t, tr.ID).NextRunAt, time.Millisecond)
}

func TestProcessPendingTriggers_NoEnabledPlatform(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	require.NoError(t, f.db.Model(&f.platform).Update("enabled", false).Error)
	tr := f.addTrigger(t, nil)
	conv := &fakeConversation{}

	f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())
	assert.Empty(t, conv.calls)

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].ErrorDetails, "No enabled Twitter platform found for agent "+f.agent.ID)
	assert.NotNil(t, f.reloadTrigger(t, tr.ID).LastRunAt)
}

func TestProcessPendingTriggers_ToolListIsAgentFunctionsPlusTerminal(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	f.addTrigger(t, func(tr *models.AgentTrigger) { tr.FunctionName = "reply_to_tweet" })
	conv := &fakeConversation{}

	f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())
	require.Len(t, conv.calls, 1)

	req := conv.calls[0]
	assert.Equal(t, "reply_to_tweet", req.Terminal.Name)
	assert.Equal(t, "Solbot", req.Agent.Name)
	assert.Equal(t, "owner@example.com", req.Agent.User.Email)
	var triggerTools []string
	for _, fn := range req.Tools {
		if fn.Type == models.FunctionTypeTrigger {
			triggerTools = append(triggerTools, fn.Name)
		}
	}
	assert.Equal(t, []string{"reply_to_tweet"}, triggerTools)
	assert.Len(t, req.Tools, 9)
	assert.Equal(t, f.agent.ID, req.Execution.AgentID)
}

func TestProcessPendingTriggers_PanicIsContained(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	first := f.addTrigger(t, nil)
	conv := &fakeConversation{panic: true}

	f.triggerScheduler(conv).ProcessPendingTriggers(context.Background())

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].ErrorDetails, "panic: model client exploded")
	assert.NotNil(t, f.reloadTrigger(t, first.ID).LastRunAt)
}

func TestProcessPendingTriggers_PollFailureWritesNoTriggerLog(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	require.NoError(t, f.db.Migrator().DropTable(&models.AgentTrigger{}))

	assert.Zero(t, f.triggerScheduler(&fakeConversation{}).ProcessPendingTriggers(context.Background()))

	logs := f.allLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogNoTrigger, logs[0].Status)
	assert.Nil(t, logs[0].TriggerID)
	assert.Contains(t, logs[0].ErrorDetails, "query due triggers")

	var meta map[string]string
	require.NoError(t, json.Unmarshal(logs[0].Metadata, &meta))
	assert.Contains(t, meta["stack"], "goroutine")
}

func TestRunTrigger_ManualRunKeepsScheduleAndDedupes(t *testing.T) {
	f := newFixture(t, models.AgentPaused)
	tr := f.addTrigger(t, nil)
	conv := &fakeConversation{}
	s := f.triggerScheduler(conv)
	ctx := context.Background()

	first, err := s.RunTrigger(ctx, tr.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LogSuccess, first.Status)

	got := f.reloadTrigger(t, tr.ID)
	assert.WithinDuration(t, *tr.NextRunAt, *got.NextRunAt, time.Millisecond)
	assert.NotNil(t, got.LastRunAt)
	assert.Nil(t, got.ClaimedUntil)

	second, err := s.RunTrigger(ctx, tr.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, conv.calls, 2)
	assert.Len(t, f.allLogs(t), 1)

	_, err = s.RunTrigger(ctx, tr.ID, "someone-else")
	assert.ErrorIs(t, err, ErrTriggerNotFound)
}

func TestRunTrigger_Busy(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	held := testNow.Add(time.Minute)
	tr := f.addTrigger(t, func(tr *models.AgentTrigger) { tr.ClaimedUntil = &held })

	_, err := f.triggerScheduler(&fakeConversation{}).RunTrigger(context.Background(), tr.ID, f.user.ID)
	assert.True(t, errors.Is(err, ErrTriggerBusy))
}

func TestNextRunAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Minute), NextRunAt(from, 5, models.RunEveryMinutes))
	assert.Equal(t, from.Add(3*time.Hour), NextRunAt(from, 3, models.RunEveryHours))
	assert.Equal(t, from.Add(48*time.Hour), NextRunAt(from, 2, models.RunEveryDays))
	assert.Equal(t, from.Add(time.Minute), NextRunAt(from, 0, models.RunEveryMinutes))
	assert.Equal(t, from.Add(7*time.Minute), NextRunAt(from, 7, "fortnights"))
}

type slowConversation struct {
	f       *fixture
	clock   *time.Time
	leaseOK []bool
}

func (c *slowConversation) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	var tr models.AgentTrigger
	if err := c.f.db.Where("id = ?", req.Trigger.ID).Take(&tr).Error; err != nil {
		return nil, err
	}
	c.leaseOK = append(c.leaseOK, tr.ClaimedUntil != nil && tr.ClaimedUntil.After(*c.clock))
	*c.clock = c.clock.Add(2 * time.Minute)
	return &orchestrator.Outcome{Turns: 1, Result: &functions.Result{Success: true}}, nil
}

func TestProcessPendingTriggers_LeaseStartsAtClaimTime(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	f.addTrigger(t, nil)
	f.addTrigger(t, nil)

	clock := testNow
	conv := &slowConversation{f: f, clock: &clock}
	s := f.triggerScheduler(conv)
	s.now = func() time.Time { return clock }

	assert.Equal(t, 2, s.ProcessPendingTriggers(context.Background()))
	assert.Equal(t, []bool{true, true}, conv.leaseOK, "each trigger runs under a live lease even when the first outlasts the TTL")
}

func TestProcessPendingTriggers_DueCheckIgnoresWriterOffset(t *testing.T) {
	f := newFixture(t, models.AgentRunning)
	notDue := testNow.Add(time.Minute).In(time.FixedZone("UTC-5", -5*3600))
	due := testNow.Add(-time.Minute).In(time.FixedZone("UTC+8", 8*3600))
	later := f.addTrigger(t, func(tr *models.AgentTrigger) { tr.NextRunAt = &notDue })
	now := f.addTrigger(t, func(tr *models.AgentTrigger) { tr.NextRunAt = &due })
	conv := &fakeConversation{}

	assert.Equal(t, 1, f.triggerScheduler(conv).ProcessPendingTriggers(context.Background()))
	require.Len(t, conv.calls, 1)
	assert.Equal(t, now.ID, conv.calls[0].Trigger.ID)

	got := f.reloadTrigger(t, later.ID)
	require.NotNil(t, got.NextRunAt)
	assert.WithinDuration(t, testNow.Add(time.Minute), *got.NextRunAt, time.Millisecond)
}
