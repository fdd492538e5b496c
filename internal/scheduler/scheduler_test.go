package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dagdev/vpnbill/internal/config"
	ierr "github.com/dagdev/vpnbill/internal/errors"
	"github.com/dagdev/vpnbill/internal/logger"
	"github.com/dagdev/vpnbill/internal/service"
	"github.com/stretchr/testify/suite"
)

type SchedulerSuite struct {
	suite.Suite
	log   *logger.Logger
	sched *Scheduler
}

func TestScheduler(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.log = logger.NewNopLogger()
	s.sched = NewScheduler(s.log)
}

func (s *SchedulerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.sched.Stop(ctx)
}

func (s *SchedulerSuite) TestEveryValidation() {
	noop := func(context.Context) error { return nil }

	err := s.sched.Every("zero", 0, noop)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	s.Require().NoError(s.sched.Every("tick", time.Minute, noop))
	err = s.sched.Every("tick", time.Minute, noop)
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SchedulerSuite) TestTriggerRunsJob() {
	var runs atomic.Int32
	s.Require().NoError(s.sched.Every("count", time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.True(s.sched.Trigger("count"))
	s.True(s.sched.Trigger("count"))
	s.False(s.sched.Trigger("missing"))
	s.Equal(int32(2), runs.Load())
}

func (s *SchedulerSuite) TestPanicIsRecovered() {
	s.Require().NoError(s.sched.Every("boom", time.Hour, func(context.Context) error {
		panic("boom")
	}))

	s.NotPanics(func() { s.sched.Trigger("boom") })
}

func (s *SchedulerSuite) TestJobDoesNotOverlap() {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	s.Require().NoError(s.sched.Every("slow", time.Hour, func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}))

	go s.sched.Trigger("slow")
	<-started

	// the second run is skipped while the first one is still in progress
	s.sched.Trigger("slow")
	close(release)

	s.Equal(int32(1), runs.Load())
}

func (s *SchedulerSuite) TestStartRunsImmediatelyAndStopCancels() {
	started := make(chan struct{}, 1)
	var cancelled atomic.Bool

	s.Require().NoError(s.sched.Every("wait", time.Hour, func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	s.sched.Start()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		s.FailNow("job did not run on start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.sched.Stop(ctx))
	s.True(cancelled.Load())
}

type fakeReconciler struct {
	ticks atomic.Int32
	err   error
}

func (f *fakeReconciler) Tick(context.Context) (*service.TickResult, error) {
	f.ticks.Add(1)
	return &service.TickResult{}, f.err
}

func (f *fakeReconciler) RetryInvoice(context.Context, string) (*service.InvoiceOutcome, error) {
	return nil, nil
}

func (s *SchedulerSuite) TestRegisterReconciliation() {
	cfg := config.GetDefaultConfig()
	rec := &fakeReconciler{err: &service.TickError{Err: errors.New("database is down")}}

	s.Require().NoError(RegisterReconciliation(s.sched, cfg, rec, s.log))
	s.True(s.sched.Trigger(JobReconciliation))
	s.True(s.sched.Trigger(JobReconciliation))

	// a failed tick does not unschedule the job
	s.Equal(int32(2), rec.ticks.Load())
}

func (s *SchedulerSuite) TestRegisterReconciliationDisabled() {
	cfg := config.GetDefaultConfig()
	cfg.Reconciliation.Enabled = false
	rec := &fakeReconciler{}

	s.Require().NoError(RegisterReconciliation(s.sched, cfg, rec, s.log))
	s.False(s.sched.Trigger(JobReconciliation))
	s.Zero(rec.ticks.Load())
}

type fakeReminder struct {
	runs atomic.Int32
}

func (f *fakeReminder) SendExpiryReminders(context.Context) (*service.ReminderResult, error) {
	f.runs.Add(1)
	return &service.ReminderResult{}, nil
}

func (s *SchedulerSuite) TestRegisterReminders() {
	cfg := config.GetDefaultConfig()
	rem := &fakeReminder{}

	s.Require().NoError(RegisterReminders(s.sched, cfg, rem, s.log))
	s.True(s.sched.Trigger(JobExpiryReminders))
	s.Equal(int32(1), rem.runs.Load())
}

func (s *SchedulerSuite) TestRegisterRemindersDisabled() {
	cfg := config.GetDefaultConfig()
	cfg.Reminders.Enabled = false
	rem := &fakeReminder{}

	s.Require().NoError(RegisterReminders(s.sched, cfg, rem, s.log))
	s.False(s.sched.Trigger(JobExpiryReminders))
	s.Zero(rem.runs.Load())
}

func (s *SchedulerSuite) TestRemindersAndReconciliationCoexist() {
	cfg := config.GetDefaultConfig()
	rec := &fakeReconciler{}
	rem := &fakeReminder{}

	s.Require().NoError(RegisterReconciliation(s.sched, cfg, rec, s.log))
	s.Require().NoError(RegisterReminders(s.sched, cfg, rem, s.log))
	s.True(s.sched.Trigger(JobExpiryReminders))
	s.Zero(rec.ticks.Load())
	s.Equal(int32(1), rem.runs.Load())
}
