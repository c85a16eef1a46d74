// Package twitter holds the OAuth 2.0 client configuration for X.
// Authorization-code exchange happens in the web app; this service only
// refreshes the tokens it stored.
package twitter

import (
	"strings"

	"github.com/pysugar/agent-nexus/internal/config"
	"golang.org/x/oauth2"
)

const (
	AuthURL  = "https://x.com/i/oauth2/authorize"
	TokenURL = "https://api.x.com/2/oauth2/token"
)

// Scopes requested when the agent's account was connected. offline.access is
// what makes a refresh token available.
var Scopes = []string{
	"tweet.read",
	"tweet.write",
	"users.read",
	"like.read",
	"like.write",
	"media.write",
	"offline.access",
}

// GetOAuthConfig returns the OAuth2 config for X. Confidential clients
// authenticate with basic auth; public (PKCE-only) clients send client_id in
// the form body.
func GetOAuthConfig(cfg config.TwitterConfig) *oauth2.Config {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	authStyle := oauth2.AuthStyleInHeader
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		authStyle = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  tokenURL,
			AuthStyle: authStyle,
		},
	}
}
