// Package functions maps function names to provider calls. It builds the tool
// definitions offered to the model and dispatches the model's tool calls.
package functions

import "github.com/pysugar/agent-nexus/internal/db/models"

// Name identifies a function with an implementation in this service.
type Name string

const (
	PostTweet           Name = "post_tweet"
	ReplyToTweet        Name = "reply_to_tweet"
	QuoteTweet          Name = "quote_tweet"
	SendTelegramMessage Name = "send_telegram_message"

	LikeTweet        Name = "like_tweet"
	Retweet          Name = "retweet"
	GetHomeTimeline  Name = "get_home_timeline"
	GetMentions      Name = "get_mentions"
	SearchTweets     Name = "search_tweets"
	GetTokenPrice    Name = "get_token_price"
	GetTokenChart    Name = "get_token_chart"
	GetWalletBalance Name = "get_wallet_balance"
)

// kinds lists every known name with the function type it must be stored as.
var kinds = map[Name]models.FunctionType{
	PostTweet:           models.FunctionTypeTrigger,
	ReplyToTweet:        models.FunctionTypeTrigger,
	QuoteTweet:          models.FunctionTypeTrigger,
	SendTelegramMessage: models.FunctionTypeTrigger,
	LikeTweet:           models.FunctionTypeAgent,
	Retweet:             models.FunctionTypeAgent,
	GetHomeTimeline:     models.FunctionTypeAgent,
	GetMentions:         models.FunctionTypeAgent,
	SearchTweets:        models.FunctionTypeAgent,
	GetTokenPrice:       models.FunctionTypeAgent,
	GetTokenChart:       models.FunctionTypeAgent,
	GetWalletBalance:    models.FunctionTypeAgent,
}

// ParseName returns the typed name for s, if it is known.
func ParseName(s string) (Name, bool) {
	n := Name(s)
	_, ok := kinds[n]
	return n, ok
}

func (n Name) String() string { return string(n) }
