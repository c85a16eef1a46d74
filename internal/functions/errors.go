package functions

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/upstream"
)

// ErrUnknownFunction is returned when a name has no registered implementation.
var ErrUnknownFunction = errors.New("unknown function")

// Codes carried by structured failure results.
const (
	CodeDuplicateContent = "DUPLICATE_CONTENT"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyLiked     = "ALREADY_LIKED"
	CodeAlreadyRetweeted = "ALREADY_RETWEETED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
)

// ArgumentError reports tool arguments the model got wrong.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }

// classify recognises provider errors the model can route around. Rate limits
// are deliberately not recognised so they propagate to the caller.
func classify(err error) (code, message string, ok bool) {
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return CodeInvalidArguments, argErr.Message, true
	}

	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) || apiErr.IsRateLimited() {
		return "", "", false
	}

	text := strings.ToLower(apiErr.Title + " " + apiErr.Detail + " " + apiErr.Body)
	has := func(markers ...string) bool {
		for _, m := range markers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return false
	}

	switch {
	case has("duplicate"):
		return CodeDuplicateContent, "This exact content was already posted. Write something new.", true
	case has("already retweeted", "already reposted"):
		return CodeAlreadyRetweeted, "This post was already retweeted by the agent.", true
	case has("already liked", "already favorited"):
		return CodeAlreadyLiked, "This post was already liked by the agent.", true
	case apiErr.StatusCode == http.StatusNotFound || has("not found", "could not find", "does not exist", "no status found"):
		return CodeNotFound, "The referenced post or resource does not exist. Use a different ID.", true
	case apiErr.StatusCode == http.StatusUnauthorized ||
		(apiErr.StatusCode == http.StatusForbidden && has("not allowed", "not permitted", "unauthorized", "forbidden")):
		return CodeUnauthorized, "The agent is not allowed to perform this action on that resource.", true
	}
	return "", "", false
}
