package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	authtwitter "github.com/pysugar/agent-nexus/internal/auth/twitter"
	"github.com/pysugar/agent-nexus/internal/auth/token"
	"github.com/pysugar/agent-nexus/internal/config"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/upstream/twitter"
	"gorm.io/gorm"
)

// ErrNoEnabledPlatform is returned when an agent has no enabled X account.
var ErrNoEnabledPlatform = errors.New("No enabled Twitter platform found")

// SocialFactory builds the social adapter for one processing attempt.
type SocialFactory interface {
	ForPlatform(p models.AgentPlatform) functions.Social
}

// TwitterFactory builds a fresh X client per attempt, so each attempt owns its
// own refresh coalescing.
type TwitterFactory struct {
	baseURL    string
	refresher  twitter.Refresher
	store      twitter.CredentialStore
	files      twitter.FileStore
	httpClient *http.Client
	logger     *slog.Logger
}

func NewTwitterFactory(cfg config.TwitterConfig, db *gorm.DB, files twitter.FileStore, logger *slog.Logger) *TwitterFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwitterFactory{
		baseURL:   cfg.APIBaseURL,
		refresher: token.NewOAuthRefresher(authtwitter.GetOAuthConfig(cfg), nil),
		store:     token.NewPlatformStore(db, logger),
		files:     files,
		logger:    logger,
	}
}

func (f *TwitterFactory) ForPlatform(p models.AgentPlatform) functions.Social {
	logger := f.logger.With("agent_id", p.AgentID, "platform_id", p.ID)
	client := twitter.NewClient(twitter.Credentials{
		PlatformID:   p.ID,
		AccountID:    p.AccountID,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		Expiry:       token.Expiry(p),
	}, twitter.Options{
		BaseURL:    f.baseURL,
		HTTPClient: f.httpClient,
		Refresher:  f.refresher,
		Store:      f.store,
		Files:      f.files,
		Logger:     logger,
	})
	logger.Debug("twitter client ready", "token_state", client.TokenState().String())
	return client
}

func findPlatform(ctx context.Context, db *gorm.DB, agentID string) (*models.AgentPlatform, error) {
	var p models.AgentPlatform
	err := db.WithContext(ctx).
		Where("agent_id = ? AND platform = ? AND enabled = ?", agentID, models.PlatformTwitter, true).
		Order("created_at").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w for agent %s", ErrNoEnabledPlatform, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load platform for agent %s: %w", agentID, err)
	}
	return &p, nil
}
