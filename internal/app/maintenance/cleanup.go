package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/teamchat/pkg/logger"
)

const (
	defaultInviteSpec = "@every 15m"
	defaultPurgeSpec  = "@hourly"
	jobTimeout        = time.Minute
)

// InviteExpirer moves due pending invites to the expired state.
type InviteExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// CachePurger removes expired entries from a shared cache store.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: sweeping stale invites and
// purging expired rows of the database-backed cache.
type Cleaner struct {
	invites InviteExpirer
	purger  CachePurger
	cron    *cron.Cron
	log     *zap.Logger

	inviteSchedule string
	purgeSchedule  string
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

// WithInviteSchedule overrides the cron specification for the invite sweep.
// An empty specification keeps the default; use a nil expirer to disable the job.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for cache purging.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding job being skipped.
func NewCleaner(invites InviteExpirer, purger CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invites:        invites,
		purger:         purger,
		inviteSchedule: defaultInviteSpec,
		purgeSchedule:  defaultPurgeSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the enabled jobs and launches the scheduler. It does nothing
// when no job is enabled.
func (c *Cleaner) Start() error {
	if c.invites == nil && c.purger == nil {
		return nil
	}

	if c.invites != nil {
		if _, err := c.cron.AddFunc(c.inviteSchedule, c.job("invite expiry", c.expireInvites)); err != nil {
			return fmt.Errorf("maintenance: schedule invite expiry: %w", err)
		}
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, c.job("cache purge", c.purgeCache)); err != nil {
			return fmt.Errorf("maintenance: schedule cache purge: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once
// running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially, collecting all failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.invites != nil {
		errs = multierr.Append(errs, c.expireInvites(ctx))
	}
	if c.purger != nil {
		errs = multierr.Append(errs, c.purgeCache(ctx))
	}
	return errs
}

func (c *Cleaner) job(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := run(ctx); err != nil {
			c.log.Warn("maintenance job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

func (c *Cleaner) expireInvites(ctx context.Context) error {
	count, err := c.invites.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire invites: %w", err)
	}
	if count > 0 {
		c.log.Info("expired stale invites", zap.Int64("count", count))
	}
	return nil
}

func (c *Cleaner) purgeCache(ctx context.Context) error {
	count, err := c.purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	if count > 0 {
		c.log.Debug("purged expired cache entries", zap.Int64("count", count))
	}
	return nil
}
