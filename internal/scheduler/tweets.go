package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/pysugar/agent-nexus/internal/util"
	"gorm.io/gorm"
)

var (
	ErrScheduledTweetNotFound = errors.New("scheduled tweet not found")
	// ErrNotCancellable means the post already left the pending state.
	ErrNotCancellable = errors.New("only pending scheduled tweets can be cancelled")
)

type TweetScheduler struct {
	db       *gorm.DB
	logs     *triggerlog.Store
	social   SocialFactory
	claimTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewTweetScheduler(db *gorm.DB, logs *triggerlog.Store, social SocialFactory, claimTTL time.Duration, logger *slog.Logger) *TweetScheduler {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TweetScheduler{
		db:       db,
		logs:     logs,
		social:   social,
		claimTTL: claimTTL,
		logger:   logger.With("component", "tweet_scheduler"),
		now:      time.Now,
	}
}

// ProcessScheduledTweets posts every pending, due scheduled tweet in order
// and returns how many were attempted. Each post ends completed or failed;
// only pending rows are ever selected, so nothing is posted twice.
func (s *TweetScheduler) ProcessScheduledTweets(ctx context.Context) (processed int) {
	now := s.now().UTC()
	var due []models.ScheduledTweet
	err := s.db.WithContext(ctx).
		Preload("Agent").
		Where("status = ? AND scheduled_at <= ?", models.TweetPending, now).
		Order("scheduled_at").
		Find(&due).Error
	if err != nil {
		s.logger.Error("failed to query scheduled tweets", "error", err)
		return 0
	}

	for _, st := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.claim(ctx, st.ID, s.now().UTC())
		if err != nil {
			s.logger.Error("failed to claim scheduled tweet", "scheduled_tweet_id", st.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.process(ctx, st)
		processed++
	}
	if processed > 0 {
		s.logger.Info("processed scheduled tweets", "count", processed)
	}
	return processed
}

func (s *TweetScheduler) claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledTweet{}).
		Where("id = ? AND status = ? AND (claimed_until IS NULL OR claimed_until <= ?)", id, models.TweetPending, now).
		Update("claimed_until", now.Add(s.claimTTL))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *TweetScheduler) process(ctx context.Context, st models.ScheduledTweet) {
	start := s.now().UTC()
	ctx = logging.WithExecutionID(ctx, logging.NewExecutionID())
	logger := logging.FromContext(ctx, s.logger).With("scheduled_tweet_id", st.ID, "agent_id", st.AgentID)

	tweetID, err := s.post(ctx, st)
	finished := s.now().UTC()

	updates := map[string]interface{}{
		"processed_at":  finished,
		"claimed_until": nil,
	}
	entry := &models.TriggerLog{
		AgentID:       st.AgentID,
		UserID:        st.Agent.UserID,
		FunctionName:  string(functions.PostTweet),
		ExecutionTime: finished.Sub(start).Milliseconds(),
		FunctionData:  toJSON(map[string]interface{}{"content": st.Content, "mediaPath": st.MediaPath, "tweetId": tweetID}),
		Metadata:      toJSON(map[string]interface{}{"scheduledTweetId": st.ID}),
	}
	if err != nil {
		logger.Error("scheduled tweet failed", "error", err)
		updates["status"] = models.TweetFailed
		updates["error_message"] = util.ErrorText(err)
		entry.Status = models.LogError
		entry.ErrorDetails = util.ErrorText(err)
	} else {
		logger.Info("scheduled tweet posted", "tweet_id", tweetID)
		updates["status"] = models.TweetCompleted
		updates["tweet_id"] = tweetID
		entry.Status = models.LogSuccess
	}

	res := s.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.ScheduledTweet{}).
		Where("id = ? AND status = ?", st.ID, models.TweetPending).
		Updates(updates)
	switch {
	case res.Error != nil:
		logger.Error("failed to mark scheduled tweet", "error", res.Error)
	case res.RowsAffected == 0:
		logger.Warn("scheduled tweet left pending before it could be marked")
	}

	if werr := s.logs.CreateLog(context.WithoutCancel(ctx), entry); werr != nil {
		logger.Error("failed to write scheduled tweet log", "error", werr)
	}
}

func (s *TweetScheduler) post(ctx context.Context, st models.ScheduledTweet) (tweetID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled tweet panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	platform, err := findPlatform(ctx, s.db, st.AgentID)
	if err != nil {
		return "", err
	}
	tweet, err := s.social.ForPlatform(*platform).PostTweet(ctx, st.Content, st.MediaPath)
	if err != nil {
		return "", err
	}
	return tweet.ID, nil
}

// CancelScheduledTweet moves one of userID's pending posts to cancelled.
func (s *TweetScheduler) CancelScheduledTweet(ctx context.Context, id, userID string) error {
	owned := func() *gorm.DB {
		return s.db.Model(&models.Agent{}).Select("id").Where("user_id = ?", userID)
	}
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledTweet{}).
		Where("id = ? AND status = ? AND agent_id IN (?)", id, models.TweetPending, owned()).
		Update("status", models.TweetCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel scheduled tweet %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var st models.ScheduledTweet
	err := s.db.WithContext(ctx).Where("id = ? AND agent_id IN (?)", id, owned()).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrScheduledTweetNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load scheduled tweet %s: %w", id, err)
	}
	return fmt.Errorf("%w: status is %s", ErrNotCancellable, st.Status)
}
