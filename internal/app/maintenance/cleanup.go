// Package maintenance runs scheduled background upkeep: pending suggestion
// batches that were never decided eventually expire.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unforkableco/fabrikator/internal/services"
	"github.com/unforkableco/fabrikator/pkg/logger"
)

const (
	defaultSchedule      = "@hourly"
	defaultSuggestionTTL = 7 * 24 * time.Hour
)

// Cleaner expires stale pending suggestions on a cron schedule.
type Cleaner struct {
	suggestions *services.SuggestionService
	cron        *cron.Cron
	schedule    string
	ttl         time.Duration
	log         *zap.Logger
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithSuggestionTTL adjusts how long pending suggestions survive.
func WithSuggestionTTL(ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		if ttl > 0 {
			cleaner.ttl = ttl
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(suggestions *services.SuggestionService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		suggestions: suggestions,
		schedule:    defaultSchedule,
		ttl:         defaultSuggestionTTL,
		log:         logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the cleanup job and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.suggestions == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("suggestion cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running job to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the cleanup immediately. Used by tests and at shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if c.suggestions == nil {
		return nil
	}
	_, err := c.suggestions.ExpireStale(ctx, c.ttl)
	return err
}
