package upstream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryHint covers the body shapes providers use to announce a backoff:
// Telegram's parameters.retry_after and a generic top-level retry_after.
type retryHint struct {
	RetryAfter json.Number `json:"retry_after"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// ParseRetryDelay extracts how long a provider asked callers to wait.
// It checks Retry-After, then X's x-rate-limit-reset epoch header, then the
// body. Returns 0 if no retry information is found.
func ParseRetryDelay(header http.Header, body []byte, now time.Time) time.Duration {
	if header != nil {
		if retryAfter := strings.TrimSpace(header.Get("Retry-After")); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				return time.Duration(seconds) * time.Second
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				return nonNegative(t.Sub(now))
			}
		}

		if reset := strings.TrimSpace(header.Get("X-Rate-Limit-Reset")); reset != "" {
			if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
				return nonNegative(time.Unix(epoch, 0).Sub(now))
			}
		}
	}

	if len(body) == 0 {
		return 0
	}
	var hint retryHint
	if err := json.Unmarshal(body, &hint); err != nil {
		return 0
	}
	if hint.Parameters.RetryAfter > 0 {
		return time.Duration(hint.Parameters.RetryAfter) * time.Second
	}
	if f, err := hint.RetryAfter.Float64(); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return 0
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
