package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc"
	"go.uber.org/fx"
)

// JobFunc is one unit of periodic work. The context is cancelled when the
// scheduler stops.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	every   time.Duration
	wrapped cron.Job
}

// Scheduler runs named jobs on fixed intervals. A job never overlaps with
// itself and a panicking job does not take the process down.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	initial conc.WaitGroup
}

// NewScheduler creates a stopped scheduler
func NewScheduler(log *logger.Logger) *Scheduler {
	cronLog := log.GetCronLogger()
	chain := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLog)),
		chain:  chain,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Every registers fn to run every interval. Intervals under a second are
// rounded up to one second by the cron schedule.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return ierr.NewErrorf("interval for job %s must be positive", name).
			WithHint("Scheduler interval must be positive").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return ierr.NewErrorf("job %s already registered", name).
			WithHint("Scheduler job is already registered").
			Mark(ierr.ErrAlreadyExists)
	}

	j := &job{name: name, every: interval}
	j.wrapped = s.chain.Then(cron.FuncJob(func() { s.run(name, fn) }))

	if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval), j.wrapped); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to schedule job %s", name).
			Mark(ierr.ErrSystem)
	}
	s.jobs[name] = j
	return nil
}

// Trigger runs a registered job once, synchronously, through the same
// recovery and overlap guards as scheduled runs. It reports false when no
// job has that name.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.wrapped.Run()
	return true
}

func (s *Scheduler) run(name string, fn JobFunc) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := fn(s.ctx)
	if err != nil {
		s.log.Errorw("scheduled job failed",
			"job", name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.log.Debugw("scheduled job finished",
		"job", name,
		"duration_ms", time.Since(start).Milliseconds())
}

// Start begins the schedule. Every job also runs once right away so the
// first pass does not wait a full interval.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	s.log.Infow("starting scheduler", "jobs", len(jobs))
	s.cron.Start()
	for _, j := range jobs {
		s.initial.Go(j.wrapped.Run)
	}
}

// Stop cancels running jobs and waits for them to return or for ctx to
// expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.initial.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Error("timeout while stopping scheduler")
		return ctx.Err()
	}
}

// RegisterWithLifecycle registers the scheduler with the fx lifecycle.
func (s *Scheduler) RegisterWithLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
