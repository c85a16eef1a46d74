package functions

import (
	"context"

	"github.com/pysugar/agent-nexus/internal/upstream/market"
	"github.com/pysugar/agent-nexus/internal/upstream/solana"
	"github.com/pysugar/agent-nexus/internal/upstream/telegram"
	"github.com/pysugar/agent-nexus/internal/upstream/twitter"
)

// Social is the per-agent posting adapter.
type Social interface {
	PostTweet(ctx context.Context, text, mediaPath string) (*twitter.Tweet, error)
	Reply(ctx context.Context, tweetID, text string) (*twitter.Tweet, error)
	Quote(ctx context.Context, tweetID, text string) (*twitter.Tweet, error)
	Like(ctx context.Context, tweetID string) (bool, error)
	Retweet(ctx context.Context, tweetID string) (bool, error)
	HomeTimeline(ctx context.Context, maxResults int) ([]twitter.Tweet, error)
	Mentions(ctx context.Context, maxResults int) ([]twitter.Tweet, error)
	Search(ctx context.Context, query string, maxResults int) ([]twitter.Tweet, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) (*telegram.Message, error)
}

type MarketData interface {
	Price(ctx context.Context, address string) (*market.Price, error)
	Chart(ctx context.Context, address, interval string, points int) ([]market.Candle, error)
}

type ChainReader interface {
	Balance(ctx context.Context, address string) (*solana.Balance, error)
}

// Execution is the state of one logical execution (one trigger attempt). It
// is created per conversation and never shared between them.
type Execution struct {
	AgentID   string
	TriggerID string
	Social    Social

	posted *Result
}

func NewExecution(agentID, triggerID string, social Social) *Execution {
	return &Execution{AgentID: agentID, TriggerID: triggerID, Social: social}
}

// Posted reports whether post_tweet already succeeded in this execution.
func (e *Execution) Posted() bool {
	return e.posted != nil
}

// Result is what a tool call returns to the conversation. A failed result is
// a recoverable error the model can react to.
type Result struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	Code          string      `json:"code,omitempty"`
	OriginalError string      `json:"originalError,omitempty"`
	Synthetic     bool        `json:"synthetic,omitempty"`
}
