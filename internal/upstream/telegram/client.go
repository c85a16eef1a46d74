// Package telegram sends agent messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/upstream"
)

const (
	providerName   = "telegram"
	DefaultBaseURL = "https://api.telegram.org"
)

type Client struct {
	botToken      string
	defaultChatID string
	baseURL       string
	httpClient    *http.Client
}

// Message is the sent message as reported by the Bot API.
type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
	Chat      struct {
		ID    int64  `json:"id"`
		Title string `json:"title,omitempty"`
	} `json:"chat"`
	Text string `json:"text"`
}

func NewClient(botToken, defaultChatID, baseURL string, httpClient *http.Client) *Client {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		botToken:      strings.TrimSpace(botToken),
		defaultChatID: strings.TrimSpace(defaultChatID),
		baseURL:       baseURL,
		httpClient:    httpClient,
	}
}

func (c *Client) IsEnabled() bool {
	return c != nil && c.botToken != ""
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// SendMessage posts text to chatID, or to the default chat when chatID is empty.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if chatID = strings.TrimSpace(chatID); chatID == "" {
		chatID = c.defaultChatID
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/bot" + c.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram sendMessage: %w", redact(err, c.botToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}

	var parsed apiResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil || !parsed.OK || resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		if parsed.ErrorCode != 0 {
			status = parsed.ErrorCode
		}
		return nil, upstream.ErrorFromBody(providerName, status, resp.Header, body)
	}

	var msg Message
	if err := json.Unmarshal(parsed.Result, &msg); err != nil {
		return nil, fmt.Errorf("decode telegram message: %w", err)
	}
	return &msg, nil
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
