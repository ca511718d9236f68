// Package worker runs the periodic jobs behind scheduled publishing,
// newsletter delivery and subscriber-platform sync.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-research-cms/internal/config"
	"go-research-cms/internal/logger"
)

// syncBatchSize bounds how many subscribers one sweep pushes to the
// platform.
const syncBatchSize = 100

// Publisher flips due scheduled articles to ready.
type Publisher interface {
	PublishDue(ctx context.Context) (int, error)
}

// NewsletterSender delivers due newsletter issues.
type NewsletterSender interface {
	SendDue(ctx context.Context) (int, error)
}

// SubscriberSyncer mirrors pending and previously failed subscribers.
type SubscriberSyncer interface {
	SyncPending(ctx context.Context, limit int) (int, error)
	RetryFailed(ctx context.Context, limit int) (int, error)
}

// Sweeper owns the background tickers. Each job runs on its own interval
// and failures are logged, never fatal; the next tick tries again.
type Sweeper struct {
	articles    Publisher
	newsletters NewsletterSender
	subscribers SubscriberSyncer
	cfg         config.JobsConfig
	log         logger.Logger
	wg          sync.WaitGroup
}

// NewSweeper creates a sweeper. Any nil dependency disables its jobs.
func NewSweeper(articles Publisher, newsletters NewsletterSender, subscribers SubscriberSyncer, cfg config.JobsConfig, log logger.Logger) *Sweeper {
	return &Sweeper{
		articles:    articles,
		newsletters: newsletters,
		subscribers: subscribers,
		cfg:         cfg,
		log:         log,
	}
}

// Start launches the job loops. They stop when ctx is cancelled; Wait
// blocks until they have drained.
func (s *Sweeper) Start(ctx context.Context) {
	if s.articles != nil {
		s.run(ctx, "publish_due", s.cfg.PublishInterval, func(ctx context.Context) (int, error) {
			return s.articles.PublishDue(ctx)
		})
	}
	if s.newsletters != nil {
		s.run(ctx, "send_newsletters", s.cfg.NewsletterInterval, func(ctx context.Context) (int, error) {
			return s.newsletters.SendDue(ctx)
		})
	}
	if s.subscribers != nil {
		s.run(ctx, "sync_subscribers", s.cfg.SyncInterval, func(ctx context.Context) (int, error) {
			return s.subscribers.SyncPending(ctx, syncBatchSize)
		})
		s.run(ctx, "retry_failed_subscribers", s.cfg.RetryInterval, func(ctx context.Context) (int, error) {
			return s.subscribers.RetryFailed(ctx, syncBatchSize)
		})
	}
}

// Wait blocks until all job loops have exited.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context, name string, interval time.Duration, job func(context.Context) (int, error)) {
	if interval <= 0 {
		s.log.Warn(fmt.Sprintf("job %s disabled: no interval configured", name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.With(map[string]interface{}{"job": name})
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Info(fmt.Sprintf("job started, running every %s", interval))
		for {
			select {
			case <-ctx.Done():
				log.Info("job stopped")
				return
			case <-ticker.C:
				processed, err := job(ctx)
				if err != nil {
					log.Error(err, "job run failed")
					continue
				}
				if processed > 0 {
					log.Info(fmt.Sprintf("job processed %d items", processed))
				}
			}
		}
	}()
}
