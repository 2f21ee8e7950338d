package reminder

import (
	"context"
	"log"
	"time"

	"github.com/meong5670/InfinitarLockin/internal/api"
	"github.com/meong5670/InfinitarLockin/internal/metrics"
	"github.com/meong5670/InfinitarLockin/internal/notify"
)

// Result is the outcome of one firing. Retry means the firing did not count
// as handled and the host must reschedule it; Done means the day is covered
// whether or not a notification went out.
type Result int

const (
	Done Result = iota
	Retry
)

func (r Result) String() string {
	if r == Retry {
		return "retry"
	}
	return "done"
}

// Checker is the identity call the scheduler shares with the resolver.
type Checker interface {
	CheckIdentity(ctx context.Context, deviceID string) (*api.CheckResponse, error)
}

// Publisher hands off the fire-once notification request.
type Publisher interface {
	Publish(ctx context.Context, r notify.Reminder) error
}

// Scheduler decides, per firing, whether the user still needs a clock-in
// nudge. Suppression keys off the live server status, not a local flag: the
// status leaves NONE the moment a clock-in lands anywhere, including from
// another device, so at most one meaningful notification exists per day.
type Scheduler struct {
	backend  Checker
	dispatch Publisher
	deviceID string
	restDay  time.Weekday

	now func() time.Time // test seam
}

// NewScheduler creates a scheduler. restDay is the fixed weekly day off on
// which firings are a no-op.
func NewScheduler(backend Checker, dispatch Publisher, deviceID string, restDay time.Weekday) *Scheduler {
	return &Scheduler{
		backend:  backend,
		dispatch: dispatch,
		deviceID: deviceID,
		restDay:  restDay,
		now:      time.Now,
	}
}

// Fire runs one reminder decision.
func (s *Scheduler) Fire(ctx context.Context) Result {
	if s.now().Weekday() == s.restDay {
		metrics.ReminderFirings.WithLabelValues(Done.String()).Inc()
		return Done
	}

	resp, err := s.backend.CheckIdentity(ctx, s.deviceID)
	if err != nil {
		// Not handled today; the host reschedules this firing.
		metrics.ReminderFirings.WithLabelValues(Retry.String()).Inc()
		return Retry
	}

	if resp.Registered && resp.Employee != nil && resp.Employee.AttendanceStatus == api.StatusNone {
		r := notify.NewReminder(s.deviceID, "Attendance Reminder", "Please don't forget to clock in for today!")
		if err := s.dispatch.Publish(ctx, r); err != nil {
			// The hand-off failed, so the nudge never reached the user.
			// Retrying is safe: the next firing re-checks live status.
			metrics.ReminderFirings.WithLabelValues(Retry.String()).Inc()
			return Retry
		}
		metrics.NotificationsPublished.Inc()
	}

	metrics.ReminderFirings.WithLabelValues(Done.String()).Inc()
	return Done
}

// Host drives Fire once per calendar day near the target local time, with
// at-least-once semantics. Wall-clock precision is best effort: never before
// the target, eventually after.
type Host struct {
	Scheduler  *Scheduler
	Hour, Min  int
	RetryDelay time.Duration
}

// Run blocks until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	retryDelay := h.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 15 * time.Minute
	}

	for {
		wait := time.Until(h.nextFire(time.Now()))
		log.Printf("reminder: next firing in %s", wait.Round(time.Second))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}

		for h.Scheduler.Fire(ctx) == Retry {
			log.Printf("reminder: firing not handled, retrying in %s", retryDelay)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// nextFire returns the next target instant strictly after now.
func (h *Host) nextFire(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), h.Hour, h.Min, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
