package triggerlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/dbtest"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func newStore(t *testing.T, window time.Duration) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(dbtest.Open(t), logging.Discard(), window)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCreateLog_SetsDefaultsAndCounts(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()

	entry := &models.TriggerLog{
		TriggerID:    strPtr("t1"),
		AgentID:      "a1",
		UserID:       "u1",
		FunctionName: "post_tweet",
		Status:       models.LogError,
		ErrorDetails: strings.Repeat("e", 5000),
	}
	require.NoError(t, s.CreateLog(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Less(t, len(entry.ErrorDetails), 5000)

	require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{Status: models.LogNoTrigger}))
	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Error)
	assert.Equal(t, int64(1), stats.NoTrigger)
}

func TestCreateLog_PlainPathNeverDedupes(t *testing.T) {
	s, _ := newStore(t, DefaultDedupeWindow)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{TriggerID: strPtr("t1"), Status: models.LogSuccess}))
	}
	logs, err := s.ByTrigger(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestCreateLogDeduped(t *testing.T) {
	s, now := newStore(t, DefaultDedupeWindow)
	ctx := context.Background()

	first, dup, err := s.CreateLogDeduped(ctx, &models.TriggerLog{TriggerID: strPtr("t1"), UserID: "u1", Status: models.LogSuccess})
	require.NoError(t, err)
	assert.False(t, dup)

	*now = now.Add(2 * time.Second)
	second, dup, err := s.CreateLogDeduped(ctx, &models.TriggerLog{TriggerID: strPtr("t1"), UserID: "u1", Status: models.LogSuccess})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)

	other, dup, err := s.CreateLogDeduped(ctx, &models.TriggerLog{TriggerID: strPtr("t2"), UserID: "u1", Status: models.LogSuccess})
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEqual(t, first.ID, other.ID)

	*now = now.Add(10 * time.Second)
	_, dup, err = s.CreateLogDeduped(ctx, &models.TriggerLog{TriggerID: strPtr("t1"), UserID: "u1", Status: models.LogSuccess})
	require.NoError(t, err)
	assert.False(t, dup, "outside the window")

	assert.Equal(t, int64(1), s.Stats().Deduped)
	assert.Equal(t, int64(3), s.Stats().Total)
}

func TestCreateLogDeduped_DisabledWindow(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, dup, err := s.CreateLogDeduped(ctx, &models.TriggerLog{TriggerID: strPtr("t1"), Status: models.LogSuccess})
		require.NoError(t, err)
		assert.False(t, dup)
	}
}

func TestUpdateExecution(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()

	entry := &models.TriggerLog{TriggerID: strPtr("t1"), Status: models.LogSuccess}
	require.NoError(t, s.CreateLog(ctx, entry))
	require.NoError(t, s.UpdateExecution(ctx, entry.ID, 1234, datatypes.JSON(`{"turns":2}`), datatypes.JSON(`{"name":"post_tweet"}`)))

	logs, err := s.ByTrigger(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(1234), logs[0].ExecutionTime)
	assert.JSONEq(t, `{"turns":2}`, string(logs[0].ConversationData))

	assert.Error(t, s.UpdateExecution(ctx, "missing", 1, nil, nil))
}

func TestQueriesAreNewestFirstAndLimited(t *testing.T) {
	s, now := newStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		*now = now.Add(time.Minute)
		require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{
			TriggerID:     strPtr("t1"),
			AgentID:       "a1",
			UserID:        "u1",
			Status:        models.LogSuccess,
			ExecutionTime: int64(i),
		}))
	}
	require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{AgentID: "a2", UserID: "u2", Status: models.LogSuccess}))

	byTrigger, err := s.ByTrigger(ctx, "t1", 3)
	require.NoError(t, err)
	require.Len(t, byTrigger, 3)
	assert.Equal(t, int64(4), byTrigger[0].ExecutionTime)
	assert.Equal(t, int64(2), byTrigger[2].ExecutionTime)

	byAgent, err := s.ByAgent(ctx, "a1", 0)
	require.NoError(t, err)
	assert.Len(t, byAgent, 5)

	byUser, err := s.ByUser(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)
}

func TestListForUser(t *testing.T) {
	s, now := newStore(t, 0)
	ctx := context.Background()

	rows := []models.TriggerLog{
		{FunctionName: "post_tweet", Status: models.LogSuccess, ExecutionTime: 300},
		{FunctionName: "reply_to_tweet", Status: models.LogError, ExecutionTime: 100, ErrorDetails: "rate limited"},
		{FunctionName: "post_tweet", Status: models.LogError, ExecutionTime: 200, ErrorDetails: "duplicate"},
	}
	for i := range rows {
		*now = now.Add(time.Second)
		rows[i].UserID = "u1"
		require.NoError(t, s.CreateLog(ctx, &rows[i]))
	}
	require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{UserID: "u2", FunctionName: "post_tweet", Status: models.LogSuccess}))

	page, err := s.ListForUser(ctx, "u1", Query{SortBy: "execution_time", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Logs, 3)
	assert.Equal(t, int64(100), page.Logs[0].ExecutionTime)
	assert.Equal(t, DefaultLimit, page.PageSize)

	page, err = s.ListForUser(ctx, "u1", Query{Status: "error", Search: "dup"})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "duplicate", page.Logs[0].ErrorDetails)

	page, err = s.ListForUser(ctx, "u1", Query{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, int64(300), page.Logs[0].ExecutionTime, "oldest row lands on page 2")
}

func TestListForUser_RejectsUnknownSortColumn(t *testing.T) {
	s, now := newStore(t, 0)
	ctx := context.Background()

	for _, ms := range []int64{1, 2} {
		*now = now.Add(time.Second)
		require.NoError(t, s.CreateLog(ctx, &models.TriggerLog{UserID: "u1", Status: models.LogSuccess, ExecutionTime: ms}))
	}

	page, err := s.ListForUser(ctx, "u1", Query{SortBy: "execution_time; DROP TABLE trigger_logs", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, int64(1), page.Logs[0].ExecutionTime, "falls back to created_at")
}

func TestCapJSON(t *testing.T) {
	small := datatypes.JSON(`{"a":1}`)
	assert.Equal(t, small, capJSON(small, 100))
	assert.JSONEq(t, `{"truncated":true,"bytes":7}`, string(capJSON(small, 3)))
}

func TestStatsSeededFromTable(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, db.Create(&models.TriggerLog{Status: models.LogSuccess}).Error)
	require.NoError(t, db.Create(&models.TriggerLog{Status: models.LogError}).Error)

	stats := NewStore(db, logging.Discard(), 0).Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, int64(1), stats.Error)
}
