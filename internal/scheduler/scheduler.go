// Package scheduler implements the recurring reminder sweep: at a fixed
// cadence it scans every user's active reminders, decides which fall inside
// their lead-time window right now, and hands each one to the push
// dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/metrics"
	"github.com/inrcare/backend/internal/push"
	"github.com/inrcare/backend/internal/store"
)

// Dispatcher is the slice of the push layer the sweep needs.
type Dispatcher interface {
	SendToUser(ctx context.Context, userID uint, payload push.Payload) push.Result
}

// Scheduler runs the reminder sweep on a fixed interval.
type Scheduler struct {
	store      *store.Store
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	clock      Clock
	deduper    Deduper
	interval   time.Duration
	cron       *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a scheduler with the default 60-second sweep cadence and no
// repeat suppression.
func New(st *store.Store, dispatcher Dispatcher, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
		clock:      systemClock{},
		deduper:    NoopDeduper{},
		interval:   60 * time.Second,
	}
}

// WithInterval sets the sweep cadence
func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	s.interval = interval
	return s
}

// WithClock overrides the wall-clock source
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// WithDeduper installs a repeat-suppression policy
func (s *Scheduler) WithDeduper(d Deduper) *Scheduler {
	s.deduper = d
	return s
}

// Start is idempotent: calling it while running is a no-op. The first call
// runs one sweep immediately, then schedules the recurring sweep. Ticks are
// wrapped in SkipIfStillRunning so a slow sweep is never re-entered by the
// next tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("reminder scheduler already running")
		return nil
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	s.sweep()
	s.cron.Start()
	return nil
}

// Stop halts the recurring sweep, waiting for an in-flight one to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("reminder scheduler stopped")
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// sweep scans all users' reminders once. It never panics out and never
// aborts on a single bad record: every per-entity failure is logged and
// skipped so one corrupt reminder cannot silence everyone else's
// notifications.
func (s *Scheduler) sweep() {
	started := time.Now()
	// Observed on every exit path, so aborted sweeps still show up in
	// sweeps_total.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during reminder sweep", zap.Any("recover", r))
		}
		s.metrics.ObserveSweep(time.Since(started))
	}()

	now := s.clock.Now()
	nowMin := now.Hour()*60 + now.Minute()
	today := now.Weekday()
	day := now.Format("2006-01-02")
	sweepID := uuid.NewString()
	ctx := context.Background()

	users, err := s.store.GetUsers()
	if err != nil {
		s.logger.Error("sweep failed to load users",
			zap.String("sweep_id", sweepID),
			zap.Error(err),
		)
		return
	}

	for i := range users {
		s.sweepUser(ctx, &users[i], nowMin, today, day, sweepID)
	}
}

func (s *Scheduler) sweepUser(ctx context.Context, u *store.User, nowMin int, today time.Weekday, day, sweepID string) {
	reminders, err := s.store.GetReminders(u.ID)
	if err != nil {
		s.logger.Error("failed to load reminders",
			zap.String("sweep_id", sweepID),
			zap.Uint("user_id", u.ID),
			zap.Error(err),
		)
		return
	}

	for i := range reminders {
		r := &reminders[i]
		if !r.Active {
			continue
		}
		if !MatchesDay(r.Days, today) {
			continue
		}

		schedMin, err := ParseClock(r.Time)
		if err != nil {
			s.logger.Warn("skipping reminder with malformed time",
				zap.String("sweep_id", sweepID),
				zap.Uint("reminder_id", r.ID),
				zap.Error(err),
			)
			continue
		}

		// Due iff now is inside [Time-NotifyBefore, Time], both ends
		// inclusive. The reminder fires again on every sweep inside
		// that window unless a deduper suppresses it.
		delta := schedMin - nowMin
		if delta < 0 || delta > r.NotifyBefore {
			continue
		}
		s.metrics.RemindersDue.Inc()

		if s.deduper.Seen(r.ID, day) {
			s.metrics.DedupeSuppressed.Inc()
			continue
		}

		med, err := s.store.GetMedication(r.MedicationID)
		if err != nil {
			s.logger.Warn("skipping reminder with missing medication",
				zap.String("sweep_id", sweepID),
				zap.Uint("reminder_id", r.ID),
				zap.Uint("medication_id", r.MedicationID),
				zap.Error(err),
			)
			continue
		}

		res := s.dispatcher.SendToUser(ctx, u.ID, push.ForReminder(r, med))
		if res.Sent > 0 {
			s.deduper.Mark(r.ID, day)
		}

		s.logger.Info("reminder dispatched",
			zap.String("sweep_id", sweepID),
			zap.Uint("user_id", u.ID),
			zap.Uint("reminder_id", r.ID),
			zap.String("medication", med.Name),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
		)
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
