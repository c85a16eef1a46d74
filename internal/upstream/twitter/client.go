// Package twitter is the X API v2 adapter used to post and read on behalf of
// an agent. Every authenticated call goes through the token lifecycle in
// token.go; every non-2xx response is returned as *upstream.APIError.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pysugar/agent-nexus/internal/upstream"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	providerName   = "twitter"
	DefaultBaseURL = "https://api.x.com"
	defaultTimeout = 30 * time.Second
)

// Credentials is the token state loaded from an agent platform row.
type Credentials struct {
	PlatformID   string
	AccountID    string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Refresher  Refresher
	Store      CredentialStore
	Files      FileStore
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client is one agent's authenticated X session. It is built per trigger or
// post attempt and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresher  Refresher
	store      CredentialStore
	files      FileStore
	logger     *slog.Logger
	now        func() time.Time

	platformID string

	mu           sync.RWMutex
	token        oauth2.Token
	userID       string
	refreshing   atomic.Bool
	refreshGroup singleflight.Group
}

// Tweet is the subset of a post the agent tools expose.
type Tweet struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AuthorID      string         `json:"author_id,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	PublicMetrics *PublicMetrics `json:"public_metrics,omitempty"`
}

type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

// User is the authenticated account.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func NewClient(creds Credentials, opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		refresher:  opts.Refresher,
		store:      opts.Store,
		files:      opts.Files,
		logger:     logger.With("provider", providerName),
		now:        now,
		platformID: creds.PlatformID,
		userID:     creds.AccountID,
		token: oauth2.Token{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       creds.Expiry,
		},
	}
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/2/users/me", nil, &resp); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.userID = resp.Data.ID
	c.mu.Unlock()
	return &resp.Data, nil
}

func (c *Client) currentUserID(ctx context.Context) (string, error) {
	c.mu.RLock()
	id := c.userID
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}
	me, err := c.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}
	return me.ID, nil
}

type createTweetRequest struct {
	Text         string       `json:"text"`
	Reply        *replyParams `json:"reply,omitempty"`
	QuoteTweetID string       `json:"quote_tweet_id,omitempty"`
	Media        *mediaParams `json:"media,omitempty"`
}

type replyParams struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type mediaParams struct {
	MediaIDs []string `json:"media_ids"`
}

// PostTweet publishes text, attaching the media stored at mediaPath when it
// can be read. Missing media degrades to a text-only post.
func (c *Client) PostTweet(ctx context.Context, text, mediaPath string) (*Tweet, error) {
	req := createTweetRequest{Text: text}

	if mediaPath = strings.TrimSpace(mediaPath); mediaPath != "" {
		mediaID, err := c.attachMedia(ctx, mediaPath)
		if err != nil {
			return nil, err
		}
		if mediaID != "" {
			req.Media = &mediaParams{MediaIDs: []string{mediaID}}
		}
	}
	return c.createTweet(ctx, req)
}

// Reply posts text as a reply to tweetID.
func (c *Client) Reply(ctx context.Context, tweetID, text string) (*Tweet, error) {
	return c.createTweet(ctx, createTweetRequest{
		Text:  text,
		Reply: &replyParams{InReplyToTweetID: tweetID},
	})
}

// Quote posts text quoting tweetID.
func (c *Client) Quote(ctx context.Context, tweetID, text string) (*Tweet, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text, QuoteTweetID: tweetID})
}

func (c *Client) createTweet(ctx context.Context, body createTweetRequest) (*Tweet, error) {
	var resp struct {
		Data Tweet `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/2/tweets", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Like likes tweetID as the authenticated account.
func (c *Client) Like(ctx context.Context, tweetID string) (bool, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return false, err
	}
	var resp struct {
		Data struct {
			Liked bool `json:"liked"`
		} `json:"data"`
	}
	path := "/2/users/" + url.PathEscape(uid) + "/likes"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"tweet_id": tweetID}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Liked, nil
}

// Retweet reposts tweetID as the authenticated account.
func (c *Client) Retweet(ctx context.Context, tweetID string) (bool, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return false, err
	}
	var resp struct {
		Data struct {
			Retweeted bool `json:"retweeted"`
		} `json:"data"`
	}
	path := "/2/users/" + url.PathEscape(uid) + "/retweets"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"tweet_id": tweetID}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Retweeted, nil
}

// HomeTimeline returns recent posts from followed accounts.
func (c *Client) HomeTimeline(ctx context.Context, maxResults int) ([]Tweet, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.listTweets(ctx, "/2/users/"+url.PathEscape(uid)+"/timelines/reverse_chronological", nil, clamp(maxResults, 5, 100))
}

// Mentions returns recent posts mentioning the authenticated account.
func (c *Client) Mentions(ctx context.Context, maxResults int) ([]Tweet, error) {
	uid, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.listTweets(ctx, "/2/users/"+url.PathEscape(uid)+"/mentions", nil, clamp(maxResults, 5, 100))
}

// Search runs a recent search (last seven days).
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Tweet, error) {
	q := url.Values{"query": []string{query}}
	return c.listTweets(ctx, "/2/tweets/search/recent", q, clamp(maxResults, 10, 100))
}

func (c *Client) listTweets(ctx context.Context, path string, q url.Values, maxResults int) ([]Tweet, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "created_at,author_id,public_metrics")

	var resp struct {
		Data []Tweet `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send authenticates req, executes it and decodes a 2xx JSON body into out.
func (c *Client) send(req *http.Request, out interface{}) error {
	token, err := c.accessToken(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := upstream.NewAPIError(providerName, resp)
		c.logger.Warn("twitter call failed", "method", req.Method, "path", req.URL.Path, "status", apiErr.StatusCode, "detail", apiErr.Detail)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode twitter response: %w", err)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v <= 0 {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
