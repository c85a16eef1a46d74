package functions

import (
	"context"
	"errors"
)

var (
	errNoSocial    = errors.New("no social account bound to this execution")
	errNoMessenger = errors.New("telegram is not configured")
	errNoMarket    = errors.New("market data is not configured")
	errNoChain     = errors.New("chain RPC is not configured")
)

func (r *Registry) postTweet(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	text := args.String("text")
	if err := checkPostLength(text); err != nil {
		return nil, err
	}
	return exec.Social.PostTweet(ctx, text, args.String("media_path"))
}

func (r *Registry) replyToTweet(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	text := args.String("text")
	if err := checkPostLength(text); err != nil {
		return nil, err
	}
	return exec.Social.Reply(ctx, args.String("tweet_id"), text)
}

func (r *Registry) quoteTweet(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	text := args.String("text")
	if err := checkPostLength(text); err != nil {
		return nil, err
	}
	return exec.Social.Quote(ctx, args.String("tweet_id"), text)
}

func (r *Registry) sendTelegramMessage(ctx context.Context, _ *Execution, args Args) (interface{}, error) {
	if r.deps.Messenger == nil {
		return nil, errNoMessenger
	}
	return r.deps.Messenger.SendMessage(ctx, args.String("chat_id"), args.String("text"))
}

func (r *Registry) likeTweet(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	id := args.String("tweet_id")
	liked, err := exec.Social.Like(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tweet_id": id, "liked": liked}, nil
}

func (r *Registry) retweet(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	id := args.String("tweet_id")
	retweeted, err := exec.Social.Retweet(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tweet_id": id, "retweeted": retweeted}, nil
}

func (r *Registry) homeTimeline(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	return exec.Social.HomeTimeline(ctx, args.Int("max_results", 10))
}

func (r *Registry) mentions(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	return exec.Social.Mentions(ctx, args.Int("max_results", 10))
}

func (r *Registry) searchTweets(ctx context.Context, exec *Execution, args Args) (interface{}, error) {
	if exec.Social == nil {
		return nil, errNoSocial
	}
	return exec.Social.Search(ctx, args.String("query"), args.Int("max_results", 10))
}

func (r *Registry) tokenPrice(ctx context.Context, _ *Execution, args Args) (interface{}, error) {
	if r.deps.Market == nil {
		return nil, errNoMarket
	}
	return r.deps.Market.Price(ctx, args.String("address"))
}

func (r *Registry) tokenChart(ctx context.Context, _ *Execution, args Args) (interface{}, error) {
	if r.deps.Market == nil {
		return nil, errNoMarket
	}
	interval := args.String("interval")
	if interval == "" {
		interval = "1H"
	}
	return r.deps.Market.Chart(ctx, args.String("address"), interval, args.Int("points", 24))
}

func (r *Registry) walletBalance(ctx context.Context, _ *Execution, args Args) (interface{}, error) {
	if r.deps.Chain == nil {
		return nil, errNoChain
	}
	return r.deps.Chain.Balance(ctx, args.String("address"))
}
