// Package scheduler drives the periodic job inventory on top of
// robfig/cron/v3: a fixed trigger table, one coalesced runner per job,
// and a bounded worker pool per platform so a slow job run never starves
// the scheduler loop itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
)

// JobFunc is the unit of work a job runs on each tick. It receives
// context.Background(); stopping the scheduler does not cancel a run
// already in progress.
type JobFunc func(ctx context.Context) error

// Job binds a JobName to its runnable and the worker pool it should be
// dispatched through.
type Job struct {
	Name config.JobName
	Run  JobFunc
	Pool string
}

// Scheduler wires config.Config's trigger table to a cron.Cron instance,
// running each job's JobFunc inside a named semaphore-bounded pool so
// per-platform concurrency stays bounded (config.MaxWorkers) regardless of
// how many jobs happen to fire at once. A job's own per-id fan-out (its
// errgroup.Group over individual CF/MR ids) is a separate, inner level of
// concurrency the pool knows nothing about.
type Scheduler struct {
	cfg   *config.Config
	cron  *cron.Cron
	log   *logrus.Entry
	pools map[string]*pool

	mu      sync.Mutex
	entries map[config.JobName]cron.EntryID
}

type pool struct {
	sem     chan struct{}
	running atomic.Int64
	wg      sync.WaitGroup
}

func newPool(limit int) *pool {
	if limit <= 0 {
		limit = 1
	}
	return &pool{sem: make(chan struct{}, limit)}
}

// run blocks until fn has actually finished executing, not merely until
// it has been admitted to the pool. The cron wrapper's SkipIfStillRunning
// guard only covers the window its FuncJob is running in, so run must not
// return early; otherwise two ticks of the same job could both be
// admitted while the first tick's real work is still in flight.
func (p *pool) run(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.wg.Add(1)
	p.running.Inc()
	defer func() {
		p.running.Dec()
		p.wg.Done()
		<-p.sem
	}()
	return fn()
}

// New builds a Scheduler. poolNames lists the distinct worker pools
// callers will dispatch jobs through (e.g. "curseforge", "modrinth");
// each is capped at cfg.MaxWorkers concurrent runs, so one platform's
// backlog never blocks the other's.
func New(cfg *config.Config, log *logrus.Entry, poolNames ...string) *Scheduler {
	pools := make(map[string]*pool, len(poolNames))
	for _, name := range poolNames {
		pools[name] = newPool(cfg.MaxWorkers)
	}
	return &Scheduler{
		cfg:     cfg,
		cron:    cron.New(),
		log:     log,
		pools:   pools,
		entries: map[config.JobName]cron.EntryID{},
	}
}

// Register schedules j according to cfg's trigger table: a crontab
// expression if one is configured for j.Name and UseCron is set,
// otherwise a fixed "@every" interval built from IntervalFor. Disabled
// jobs (JobEnabled == false) are skipped entirely. SkipIfStillRunning
// keeps at most one run of a job in flight: a tick that fires while the
// previous run is still going is dropped, not queued.
func (s *Scheduler) Register(j Job) error {
	if !s.cfg.JobEnabled(j.Name) {
		s.log.WithField("job", j.Name).Info("scheduler: job disabled, not registering")
		return nil
	}

	p, ok := s.pools[j.Pool]
	if !ok {
		return fmt.Errorf("scheduler: unknown pool %q for job %s", j.Pool, j.Name)
	}

	spec, err := s.triggerSpec(j.Name)
	if err != nil {
		return err
	}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
		_ = p.run(context.Background(), func() error {
			start := time.Now()
			entry := s.log.WithField("job", j.Name)
			entry.Info("scheduler: job starting")
			if err := j.Run(context.Background()); err != nil {
				entry.WithError(err).WithField("elapsed", time.Since(start)).Error("scheduler: job failed")
				return err
			}
			entry.WithField("elapsed", time.Since(start)).Info("scheduler: job finished")
			return nil
		})
	}))

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: register %s with spec %q: %w", j.Name, spec, err)
	}

	s.mu.Lock()
	s.entries[j.Name] = id
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) triggerSpec(name config.JobName) (string, error) {
	if s.cfg.UseCron {
		if expr, ok := s.cfg.CronFor(name); ok {
			return expr, nil
		}
	}
	seconds := s.cfg.IntervalFor(name)
	if seconds <= 0 {
		return "", fmt.Errorf("scheduler: no interval configured for job %s", name)
	}
	return fmt.Sprintf("@every %ds", seconds), nil
}

// Running reports how many jobs are currently executing in the named
// pool, for the global_statistics job and operator diagnostics.
func (s *Scheduler) Running(poolName string) int64 {
	p, ok := s.pools[poolName]
	if !ok {
		return 0
	}
	return p.running.Load()
}

// Start begins firing registered jobs; it does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits (up to ctx's deadline) for
// in-flight job runs across every pool to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		for _, p := range s.pools {
			p.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
