// Package scheduler charges due subscriptions on a timer. Each run lists the
// active subscriptions whose interval has elapsed and passes them to
// BatchCharge in pages.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/subscription"
)

const (
	// DefaultInterval is how often due subscriptions are charged.
	DefaultInterval = time.Minute
	// DefaultPageSize bounds one BatchCharge call.
	DefaultPageSize = 100

	jobName = "subvault-batch-charge"
	lockKey = "subvault:scheduler"
)

// Charger is the part of *subvault.Vault the scheduler drives.
type Charger interface {
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	BatchCharge(ctx context.Context, ids []subscription.ID) ([]subvault.BatchChargeResult, error)
	Now() int64
}

var _ Charger = (*subvault.Vault)(nil)

// Report summarizes one run.
type Report struct {
	Due     int
	Charged int
	Failed  int
	// Skipped is set when another replica held the run lock.
	Skipped bool
}

// Scheduler runs batch charges in the background.
type Scheduler struct {
	vault    Charger
	sched    gocron.Scheduler
	locks    lock.Locker
	logger   *slog.Logger
	interval time.Duration
	pageSize int
	lockTTL  time.Duration
	caller   func(context.Context) context.Context

	mu     sync.Mutex
	job    gocron.Job
	cancel context.CancelFunc
	ctx    context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the run interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithPageSize sets the maximum number of ids per BatchCharge call.
func WithPageSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLocker sets the locker guarding a run. Replicas that share a
// lock.RedisLocker never run concurrently.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) {
		s.locks = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithCaller decorates the context of every run, typically to attach the
// admin credentials BatchCharge requires (see auth.WithToken).
func WithCaller(fn func(context.Context) context.Context) Option {
	return func(s *Scheduler) {
		s.caller = fn
	}
}

// New creates a stopped Scheduler.
func New(v Charger, opts ...Option) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}

	s := &Scheduler{
		vault:    v,
		sched:    sched,
		locks:    lock.NewMemory(),
		logger:   slog.Default(),
		interval: DefaultInterval,
		pageSize: DefaultPageSize,
		caller:   func(ctx context.Context) context.Context { return ctx },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lockTTL = 2 * s.interval
	return s, nil
}

// Start registers the charge job and starts the scheduler. The first run
// happens immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	job, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		return fmt.Errorf("scheduler: register job: %w", err)
	}
	s.job = job
	s.sched.Start()

	s.logger.Info("scheduler started",
		"interval", s.interval,
		"page_size", s.pageSize,
	)
	return nil
}

// Stop cancels a run in progress and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopping")
	return s.sched.Shutdown()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled batch charge failed", "error", err)
		return
	}
	if report.Due > 0 {
		s.logger.Info("scheduled batch charge",
			"due", report.Due,
			"charged", report.Charged,
			"failed", report.Failed,
		)
	}
}

// RunOnce charges every subscription that is due now. It returns a Skipped
// report when another run holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	release, acquired, err := s.locks.TryAcquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: lock: %w", err)
	}
	if !acquired {
		return Report{Skipped: true}, nil
	}
	defer release()

	ctx = s.caller(ctx)

	due, err := s.dueIDs(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Due: len(due)}
	for start := 0; start < len(due); start += s.pageSize {
		end := min(start+s.pageSize, len(due))
		results, err := s.vault.BatchCharge(ctx, due[start:end])
		if err != nil {
			return report, fmt.Errorf("scheduler: batch charge: %w", err)
		}
		for _, r := range results {
			if r.Success {
				report.Charged++
			} else {
				report.Failed++
			}
		}
	}
	return report, nil
}

// dueIDs collects all due ids before charging, since charging removes
// records from the due set and would shift offsets.
func (s *Scheduler) dueIDs(ctx context.Context) ([]subscription.ID, error) {
	now := s.vault.Now()
	var ids []subscription.ID
	for offset := 0; ; offset += s.pageSize {
		page, err := s.vault.ListSubscriptions(ctx, subscription.ListOpts{
			Status:    subscription.StatusActive,
			DueBefore: now,
			Limit:     s.pageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler: list due: %w", err)
		}
		for _, sub := range page {
			ids = append(ids, sub.ID)
		}
		if len(page) < s.pageSize {
			return ids, nil
		}
	}
}
