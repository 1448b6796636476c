package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
	"github.com/seetohshaokang/HabitEase/pkg/logger"
	"go.uber.org/zap"
)

// Reconciler corrects cached streaks from log history
type Reconciler interface {
	ReconcileStreaks(ctx context.Context) (int, error)
}

// Scheduler runs streak reconciliation at every calendar midnight, when the
// day-keyed statistics roll over.
type Scheduler struct {
	reconciler Reconciler
	cal        habits.Calendar
	logger     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(reconciler Reconciler, cal habits.Calendar, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		cal:        cal,
		logger:     logger,
	}
}

// nextRun returns the first midnight after now in the calendar's location
func (s *Scheduler) nextRun(now time.Time) time.Time {
	_, end := s.cal.DayBounds(now)
	return end
}

// Start runs one reconciliation immediately and then one per night until
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.RunOnce(ctx)

		for {
			now := s.cal.Now()
			next := s.nextRun(now)
			s.logger.Info("Streak reconciliation scheduled",
				zap.Time("next_run", next),
				zap.Duration("time_until_next_run", next.Sub(now)),
			)

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce reconciles every habit's cached streak
func (s *Scheduler) RunOnce(ctx context.Context) {
	startTime := time.Now()
	s.logger.Info("Starting streak reconciliation", zap.Time("start_time", startTime))

	repaired, err := s.reconciler.ReconcileStreaks(ctx)
	if err != nil {
		s.logger.Error("Streak reconciliation failed",
			zap.Int("repaired", repaired),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Completed streak reconciliation",
		zap.Int("repaired", repaired),
		zap.Duration("duration", time.Since(startTime)),
	)
}
