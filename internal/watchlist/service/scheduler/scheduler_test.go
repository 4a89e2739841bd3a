package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type SchedulerSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSweeper struct {
	calls   atomic.Int64
	result  int
	err     error
	block   chan struct{} // when set, Sweep waits on it
	started chan struct{} // closed-ish signal per call when block is set
}

func (c *countingSweeper) Sweep(context.Context) (int, error) {
	c.calls.Add(1)
	if c.block != nil {
		c.started <- struct{}{}
		<-c.block
	}
	return c.result, c.err
}

type countingReconciler struct {
	calls atomic.Int64
}

func (c *countingReconciler) Reconcile(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func (s *SchedulerSuite) TestTriggersReportSweepResults() {
	keyword := &countingSweeper{result: 3}
	card := &countingSweeper{result: 2}
	rec := &countingReconciler{}

	sched, err := New(keyword, card, rec, WithLogger(s.logger))
	s.Require().NoError(err)

	n, err := sched.TriggerKeyword(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = sched.TriggerCard(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = sched.TriggerReconcile(context.Background())
	s.Require().NoError(err)
	s.Equal(0, n)
	s.Equal(int64(1), rec.calls.Load())
}

func (s *SchedulerSuite) TestSweepErrorsSurfaceToCaller() {
	keyword := &countingSweeper{err: errors.New("db down")}
	sched, err := New(keyword, &countingSweeper{}, &countingReconciler{}, WithLogger(s.logger))
	s.Require().NoError(err)

	_, err = sched.TriggerKeyword(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "db down")
}

func (s *SchedulerSuite) TestConcurrentTriggersOfOneKindCollapse() {
	keyword := &countingSweeper{
		result:  5,
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	sched, err := New(keyword, &countingSweeper{}, &countingReconciler{}, WithLogger(s.logger))
	s.Require().NoError(err)

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := sched.TriggerKeyword(context.Background())
			s.NoError(err)
			results[i] = n
		}()
	}

	// Wait until the first trigger is inside Sweep, then release it. Every
	// waiter joins that single run.
	<-keyword.started
	time.Sleep(50 * time.Millisecond)
	close(keyword.block)
	wg.Wait()

	s.Equal(int64(1), keyword.calls.Load())
	for _, n := range results {
		s.Equal(5, n)
	}
}

type ctxSensitiveSweeper struct{}

func (ctxSensitiveSweeper) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 7, nil
}

func (s *SchedulerSuite) TestSweepSurvivesTriggeringCallerCancellation() {
	sched, err := New(ctxSensitiveSweeper{}, &countingSweeper{}, &countingReconciler{},
		WithLogger(s.logger))
	s.Require().NoError(err)

	// A cancelled trigger must not poison the shared run that a periodic
	// tick or another caller may have joined.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := sched.TriggerKeyword(ctx)
	s.Require().NoError(err)
	s.Equal(7, n)
}

func (s *SchedulerSuite) TestRunTicksAllKinds() {
	keyword := &countingSweeper{}
	card := &countingSweeper{}
	rec := &countingReconciler{}
	sched, err := New(keyword, card, rec,
		WithLogger(s.logger), WithInterval(10*time.Millisecond))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	s.Eventually(func() bool {
		return keyword.calls.Load() >= 2 && card.calls.Load() >= 2 && rec.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func (s *SchedulerSuite) TestReconcileDisabledSkipsPeriodicBackfill() {
	keyword := &countingSweeper{}
	rec := &countingReconciler{}
	sched, err := New(keyword, &countingSweeper{}, rec,
		WithLogger(s.logger), WithInterval(10*time.Millisecond), WithReconcileDisabled(true))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	s.Eventually(func() bool { return keyword.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	s.Equal(int64(0), rec.calls.Load())

	// Manual backfill still works when the periodic one is off.
	n, err := sched.TriggerReconcile(context.Background())
	s.Require().NoError(err)
	s.Equal(0, n)
	s.Equal(int64(1), rec.calls.Load())
}

func (s *SchedulerSuite) TestNilDependenciesRejected() {
	_, err := New(nil, &countingSweeper{}, &countingReconciler{})
	s.Require().Error(err)
	s.Contains(err.Error(), "required")

	_, err = New(&countingSweeper{}, &countingSweeper{}, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "reconciler is required")
}
