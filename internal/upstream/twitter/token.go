package twitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// RefreshThreshold is how close to expiry a token may get before the next
// authenticated call refreshes it first.
const RefreshThreshold = 5 * time.Minute

// ErrRefreshFailed wraps any failure to obtain a new access token. It is fatal
// for the call that needed the token; nothing retries it automatically.
var ErrRefreshFailed = errors.New("twitter token refresh failed")

// TokenState is the lifecycle position of the client's access token.
type TokenState int

const (
	TokenValid TokenState = iota
	TokenExpiringSoon
	TokenRefreshing
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpiringSoon:
		return "expiring-soon"
	case TokenRefreshing:
		return "refresh-in-flight"
	default:
		return "unknown"
	}
}

// Refresher exchanges a refresh token for a new token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CredentialStore persists refreshed credentials so they survive restarts.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, platformID string, token *oauth2.Token) error
}

// TokenState reports where the current access token is in its lifecycle.
func (c *Client) TokenState() TokenState {
	if c.refreshing.Load() {
		return TokenRefreshing
	}
	c.mu.RLock()
	expiry := c.token.Expiry
	c.mu.RUnlock()
	if c.expiringSoon(expiry) {
		return TokenExpiringSoon
	}
	return TokenValid
}

func (c *Client) expiringSoon(expiry time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return expiry.Sub(c.now()) < RefreshThreshold
}

// accessToken returns a token valid for at least RefreshThreshold, refreshing
// first when needed. Refresh is coalesced: concurrent callers that find the
// token expiring share one in-flight refresh and all receive its result.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if !c.expiringSoon(tok.Expiry) {
		return tok.AccessToken, nil
	}

	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	c.mu.RLock()
	current := c.token
	c.mu.RUnlock()
	// Another caller's refresh may have landed between the check and Do.
	if !c.expiringSoon(current.Expiry) {
		return current.AccessToken, nil
	}

	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	if c.refresher == nil {
		return "", fmt.Errorf("%w: no refresher configured", ErrRefreshFailed)
	}
	if current.RefreshToken == "" {
		return "", fmt.Errorf("%w: platform %s has no refresh token", ErrRefreshFailed, c.platformID)
	}

	c.logger.Info("refreshing twitter token", "platform_id", c.platformID, "expiry", current.Expiry)
	newTok, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = current.RefreshToken
	}

	c.mu.Lock()
	c.token = *newTok
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveCredentials(ctx, c.platformID, newTok); err != nil {
			c.logger.Error("failed to persist refreshed twitter credentials", "platform_id", c.platformID, "error", err)
		}
	}
	return newTok.AccessToken, nil
}
