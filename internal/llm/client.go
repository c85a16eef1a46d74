// Package llm builds the chat-completion client used by the orchestrator.
// Any OpenAI-compatible endpoint works; base URL and static headers come
// from config.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultTimeout = 180 * time.Second

// ChatClient is the one call the orchestrator makes.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient returns an OpenAI-compatible client. staticHeaders are added to
// every request (e.g. HTTP-Referer for OpenRouter).
func NewClient(apiKey, baseURL string, timeout time.Duration, staticHeaders map[string]string) *openai.Client {
	return NewClientWithHTTP(apiKey, baseURL, timeout, staticHeaders, nil)
}

func NewClientWithHTTP(
	apiKey, baseURL string,
	timeout time.Duration,
	staticHeaders map[string]string,
	httpClient *http.Client,
) *openai.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	headers := make(map[string]string, len(staticHeaders))
	for k, v := range staticHeaders {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	var base http.RoundTripper = http.DefaultTransport
	if httpClient != nil {
		if httpClient.Transport != nil {
			base = httpClient.Transport
		}
		if httpClient.Timeout > 0 {
			timeout = httpClient.Timeout
		}
	}

	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: base, headers: headers},
	}
	return openai.NewClientWithConfig(cfg)
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(r)
	}
	clone := r.Clone(r.Context())
	for k, v := range t.headers {
		if shouldSkipStaticHeader(k) {
			continue
		}
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}

// shouldSkipStaticHeader keeps config from overriding auth or hop-by-hop headers.
func shouldSkipStaticHeader(header string) bool {
	switch header {
	case "Authorization",
		"Content-Length",
		"Connection",
		"Transfer-Encoding",
		"Host":
		return true
	default:
		return false
	}
}
