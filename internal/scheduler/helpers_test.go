package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/dbtest"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/functions/catalog"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/orchestrator"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/pysugar/agent-nexus/internal/upstream/twitter"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeSocial struct {
	mu      sync.Mutex
	posts   []string
	postErr error
	onPost  func(text string)
}

func (f *fakeSocial) PostTweet(ctx context.Context, text, mediaPath string) (*twitter.Tweet, error) {
	if f.onPost != nil {
		f.onPost(text)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &twitter.Tweet{ID: "tweet-1", Text: text}, nil
}

func (f *fakeSocial) Reply(ctx context.Context, tweetID, text string) (*twitter.Tweet, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeSocial) Quote(ctx context.Context, tweetID, text string) (*twitter.Tweet, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeSocial) Like(ctx context.Context, tweetID string) (bool, error)    { return true, nil }
func (f *fakeSocial) Retweet(ctx context.Context, tweetID string) (bool, error) { return true, nil }

func (f *fakeSocial) HomeTimeline(ctx context.Context, maxResults int) ([]twitter.Tweet, error) {
	return nil, nil
}

func (f *fakeSocial) Mentions(ctx context.Context, maxResults int) ([]twitter.Tweet, error) {
	return nil, nil
}

func (f *fakeSocial) Search(ctx context.Context, query string, maxResults int) ([]twitter.Tweet, error) {
	return nil, nil
}

func (f *fakeSocial) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeFactory struct {
	social    *fakeSocial
	platforms []string
}

func (f *fakeFactory) ForPlatform(p models.AgentPlatform) functions.Social {
	f.platforms = append(f.platforms, p.ID)
	return f.social
}

type fakeConversation struct {
	calls []orchestrator.Request
	err   error
	panic bool
}

func (f *fakeConversation) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	f.calls = append(f.calls, req)
	if f.panic {
		panic("model client exploded")
	}
	if f.err != nil {
		return &orchestrator.Outcome{Turns: 1}, f.err
	}
	return &orchestrator.Outcome{Turns: 1, Result: &functions.Result{Success: true}}, nil
}

type fixture struct {
	db       *gorm.DB
	logs     *triggerlog.Store
	user     models.User
	agent    models.Agent
	platform models.AgentPlatform
	factory  *fakeFactory
}

func newFixture(t *testing.T, agentStatus models.AgentStatus) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	defs := catalog.Default()
	require.NoError(t, db.Create(&defs).Error)

	f := &fixture{db: db, factory: &fakeFactory{social: &fakeSocial{}}}
	f.user = models.User{Email: "owner@example.com"}
	require.NoError(t, db.Create(&f.user).Error)
	f.agent = models.Agent{UserID: f.user.ID, Name: "Solbot", Goal: "Post market updates", Status: agentStatus}
	require.NoError(t, db.Create(&f.agent).Error)
	f.platform = models.AgentPlatform{
		AgentID:         f.agent.ID,
		Platform:        models.PlatformTwitter,
		AccessToken:     "access",
		RefreshToken:    "refresh",
		ExpiryTimestamp: testNow.Add(time.Hour),
		Enabled:         true,
	}
	require.NoError(t, db.Create(&f.platform).Error)

	f.logs = triggerlog.NewStore(db, logging.Discard(), triggerlog.DefaultDedupeWindow)
	return f
}

func (f *fixture) addTrigger(t *testing.T, mutate func(*models.AgentTrigger)) models.AgentTrigger {
	t.Helper()
	next := testNow.Add(-time.Minute)
	tr := models.AgentTrigger{
		AgentID:           f.agent.ID,
		FunctionName:      "post_tweet",
		Interval:          5,
		RunEvery:          models.RunEveryMinutes,
		InformationSource: "Daily $SOL update",
		Status:            models.TriggerActive,
		NextRunAt:         &next,
	}
	if mutate != nil {
		mutate(&tr)
	}
	require.NoError(t, f.db.Create(&tr).Error)
	return tr
}

func (f *fixture) reloadTrigger(t *testing.T, id string) models.AgentTrigger {
	t.Helper()
	var tr models.AgentTrigger
	require.NoError(t, f.db.Where("id = ?", id).Take(&tr).Error)
	return tr
}

func (f *fixture) triggerScheduler(conv Conversation) *TriggerScheduler {
	s := NewTriggerScheduler(f.db, f.logs, conv, f.factory, time.Minute, logging.Discard())
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) tweetScheduler() *TweetScheduler {
	s := NewTweetScheduler(f.db, f.logs, f.factory, time.Minute, logging.Discard())
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) allLogs(t *testing.T) []models.TriggerLog {
	t.Helper()
	var logs []models.TriggerLog
	require.NoError(t, f.db.Order("created_at").Find(&logs).Error)
	return logs
}
