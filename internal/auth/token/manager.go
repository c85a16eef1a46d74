// Package token refreshes OAuth credentials of agent platforms and writes the
// rotated tokens back to the database.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ErrCredentialsRevoked marks a refresh the provider will never accept again.
// The account has to be reconnected through the web app.
var ErrCredentialsRevoked = errors.New("credentials revoked, reconnect the account")

// OAuthRefresher exchanges refresh tokens at the provider's token endpoint.
type OAuthRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuthRefresher(config *oauth2.Config, httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{config: config, httpClient: httpClient}
}

// Refresh returns a new token. The provider may rotate the refresh token;
// when it does not, the returned token carries the old one.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// An empty access token forces the source to hit the token endpoint.
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		if IsPermanentRefreshError(err) {
			return nil, fmt.Errorf("%w: %w", ErrCredentialsRevoked, err)
		}
		return nil, err
	}
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = refreshToken
	}
	return newToken, nil
}

// PlatformStore persists refreshed credentials on AgentPlatform rows.
type PlatformStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewPlatformStore(db *gorm.DB, logger *slog.Logger) *PlatformStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformStore{db: db, logger: logger}
}

// SaveCredentials writes the new access token, expiry and (if rotated)
// refresh token for platformID.
func (s *PlatformStore) SaveCredentials(ctx context.Context, platformID string, tok *oauth2.Token) error {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}

	updates := map[string]interface{}{
		"access_token":     tok.AccessToken,
		"expires_in":       expiresIn,
		"expiry_timestamp": tok.Expiry.UTC(),
	}
	if tok.RefreshToken != "" {
		updates["refresh_token"] = tok.RefreshToken
	}

	result := s.db.WithContext(ctx).Model(&models.AgentPlatform{}).Where("id = ?", platformID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("save credentials for platform %s: %w", platformID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("save credentials: platform %s not found", platformID)
	}

	s.logger.Info("persisted refreshed credentials", "platform_id", platformID, "expiry", tok.Expiry.UTC().Format(time.RFC3339))
	return nil
}

// Expiry resolves a platform's token expiry, falling back to the last update
// plus expires_in when the timestamp was never written.
func Expiry(p models.AgentPlatform) time.Time {
	if !p.ExpiryTimestamp.IsZero() {
		return p.ExpiryTimestamp
	}
	if p.ExpiresIn > 0 && !p.UpdatedAt.IsZero() {
		return p.UpdatedAt.Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

// IsPermanentRefreshError reports whether the provider rejected the refresh
// token itself rather than failing transiently.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
