package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner is the periodic driver: each tick runs the trigger cycle then the
// scheduled-tweet cycle. At most one cycle is in flight per process.
type Runner struct {
	triggers *TriggerScheduler
	tweets   *TweetScheduler
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(triggers *TriggerScheduler, tweets *TweetScheduler, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		triggers: triggers,
		tweets:   tweets,
		interval: interval,
		logger:   logger.With("component", "runner"),
	}
}

// RunOnce runs one full cycle. It returns false without doing anything when
// a cycle is already running.
func (r *Runner) RunOnce(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("previous cycle still running, skipping tick")
		return false
	}
	defer r.running.Store(false)

	start := time.Now()
	triggers := r.triggers.ProcessPendingTriggers(ctx)
	tweets := r.tweets.ProcessScheduledTweets(ctx)
	r.logger.Debug("cycle finished", "triggers", triggers, "tweets", tweets, "duration", time.Since(start))
	return true
}

// Start runs a cycle immediately and then on every tick until Stop or ctx ends.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(r.interval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		r.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Ticks run in their own goroutine so a slow cycle is skipped, not queued.
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					r.RunOnce(ctx)
				}()
			}
		}
	}()
	r.logger.Info("scheduler started", "interval", r.interval)
}

// Stop cancels the loop and waits for the in-flight cycle.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("scheduler stopped")
}
