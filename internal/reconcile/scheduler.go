package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"stockroom.org/internal/lock"
	"stockroom.org/internal/obs"
)

const (
	// DefaultSchedule matches the dashboard's 30 second KPI refresh.
	DefaultSchedule = "@every 30s"
	lockKey         = "reconcile:stock-cache"
)

// Refresher rebuilds the stock cache and reports how many items it wrote.
type Refresher interface {
	RefreshStockCache(ctx context.Context) (int, error)
}

type Options struct {
	Schedule string
	// Locker keeps concurrent instances from refreshing at the same time.
	// Nil runs unguarded.
	Locker  lock.Locker
	Logger  *obs.Logger
	Timeout time.Duration
}

// Scheduler periodically re-derives StockCache from the entry fold.
type Scheduler struct {
	cron    *cron.Cron
	job     Refresher
	locker  lock.Locker
	log     *obs.Logger
	timeout time.Duration
}

func NewScheduler(job Refresher, opts Options) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("reconcile: refresher is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Logger == nil {
		opts.Logger = obs.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	clog := cronLogger{log: opts.Logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog))),
		job:     job,
		locker:  opts.Locker,
		log:     opts.Logger,
		timeout: opts.Timeout,
	}
	if _, err := s.cron.AddFunc(opts.Schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn(context.Background(), "stock cache reconcile failed", err)
		}
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info(context.Background(), "reconcile scheduler started")
}

// Stop halts scheduling and waits for a running refresh or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.log.Info(context.Background(), "reconcile scheduler stopped")
}

// RunOnce performs one guarded refresh. A refresh already held by another
// instance is skipped without error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		lockCtx, lockCancel := context.WithTimeout(ctx, time.Second)
		unlock, err := s.locker.Lock(lockCtx, lockKey)
		lockCancel()
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Debug(ctx, "reconcile skipped; lock held elsewhere")
			return nil
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	start := time.Now()
	n, err := s.job.RefreshStockCache(ctx)
	if err != nil {
		return err
	}
	s.log.Entry(ctx).Debug().
		Int("items", n).
		Dur("took", time.Since(start)).
		Msg("stock cache reconciled")
	return nil
}

// cronLogger adapts obs.Logger to cron.Logger.
type cronLogger struct {
	log *obs.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Entry(context.Background()).Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Entry(context.Background()).Error().Err(err).Fields(keysAndValues).Msg(msg)
}
