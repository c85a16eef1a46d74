package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/dbtest"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/functions/catalog"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/orchestrator"
	"github.com/pysugar/agent-nexus/internal/scheduler"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubConversation struct{ runs int }

func (c *stubConversation) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	c.runs++
	return &orchestrator.Outcome{Turns: 1, Result: &functions.Result{Success: true}}, nil
}

type nilFactory struct{}

func (nilFactory) ForPlatform(models.AgentPlatform) functions.Social { return nil }

type testServer struct {
	db      *gorm.DB
	handler http.Handler
	user    models.User
	agent   models.Agent
	trigger models.AgentTrigger
	tweet   models.ScheduledTweet
	conv    *stubConversation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database := dbtest.Open(t)
	defs := catalog.Default()
	require.NoError(t, database.Create(&defs).Error)

	s := &testServer{db: database, conv: &stubConversation{}}
	s.user = models.User{Email: "owner@example.com", APIKey: "sk-owner"}
	require.NoError(t, database.Create(&s.user).Error)
	require.NoError(t, database.Create(&models.User{Email: "other@example.com", APIKey: "sk-other"}).Error)

	s.agent = models.Agent{UserID: s.user.ID, Name: "Solbot", Status: models.AgentRunning}
	require.NoError(t, database.Create(&s.agent).Error)
	require.NoError(t, database.Create(&models.AgentPlatform{AgentID: s.agent.ID, Platform: models.PlatformTwitter, Enabled: true}).Error)

	next := time.Now().Add(time.Hour).UTC()
	s.trigger = models.AgentTrigger{AgentID: s.agent.ID, FunctionName: "post_tweet", Interval: 1, RunEvery: models.RunEveryHours, NextRunAt: &next}
	require.NoError(t, database.Create(&s.trigger).Error)
	s.tweet = models.ScheduledTweet{AgentID: s.agent.ID, Content: "later", ScheduledAt: next}
	require.NoError(t, database.Create(&s.tweet).Error)

	logs := triggerlog.NewStore(database, logging.Discard(), 0)
	s.handler = NewRouter(Deps{
		DB:       database,
		Logs:     logs,
		Triggers: scheduler.NewTriggerScheduler(database, logs, s.conv, nilFactory{}, time.Minute, logging.Discard()),
		Tweets:   scheduler.NewTweetScheduler(database, logs, nilFactory{}, time.Minute, logging.Discard()),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, key string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthzNeedsNoKey(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/stats", "sk-wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("x-api-key", "sk-owner")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRunTriggerThenListLogs(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/triggers/"+s.trigger.ID+"/run", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 1, s.conv.runs)

	rec, body = s.do(t, http.MethodGet, "/api/logs?sort_by=execution_time&order=asc", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	rec, body = s.do(t, http.MethodGet, "/api/triggers/"+s.trigger.ID+"/logs?limit=5", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = s.do(t, http.MethodGet, "/api/agents/"+s.agent.ID+"/logs", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = s.do(t, http.MethodGet, "/api/stats", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["success"])

	rec, body = s.do(t, http.MethodGet, "/api/logs", "sk-other")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["total"])
}

func TestOtherUsersResourcesAreHidden(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/triggers/" + s.trigger.ID + "/logs"},
		{http.MethodGet, "/api/agents/" + s.agent.ID + "/logs"},
		{http.MethodPost, "/api/triggers/" + s.trigger.ID + "/run"},
		{http.MethodPost, "/api/scheduled-tweets/" + s.tweet.ID + "/cancel"},
	} {
		rec, _ := s.do(t, tc.method, tc.path, "sk-other")
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.path)
	}
	assert.Zero(t, s.conv.runs)
}

func TestCancelScheduledTweet(t *testing.T) {
	s := newTestServer(t)
	path := "/api/scheduled-tweets/" + s.tweet.ID + "/cancel"

	rec, body := s.do(t, http.MethodPost, path, "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["status"])

	rec, _ = s.do(t, http.MethodPost, path, "sk-owner")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFunctions(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/api/functions", "sk-owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(len(catalog.Default())), body["count"])
}
