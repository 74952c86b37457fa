// Package escalation advances reminders through their warning thresholds.
// Each threshold fires at most once per reminder.
package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/logger"
	"github.com/julianstephens/agencydesk/internal/metrics"
	"github.com/julianstephens/agencydesk/internal/models"
	"github.com/julianstephens/agencydesk/internal/repository"
)

// Event is one escalation, handed to the sink and kept as the active
// notification until acknowledged or dismissed.
type Event struct {
	ReminderID     string    `json:"reminderId"`
	ThresholdID    string    `json:"thresholdId"`
	ThresholdLabel string    `json:"thresholdLabel"`
	Text           string    `json:"text"`
	Due            time.Time `json:"due"`
	FiredAt        time.Time `json:"firedAt"`
}

// Sink delivers escalation events. Delivery is best effort.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

type Options struct {
	PollInterval time.Duration
	Now          func() time.Time
}

type Scheduler struct {
	reminders *repository.Reminders
	sink      Sink
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	active *Event
}

func New(reminders *repository.Reminders, sink Sink, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		reminders: reminders,
		sink:      sink,
		interval:  opts.PollInterval,
		now:       opts.Now,
	}
}

// Poll runs one escalation cycle and fires at most one event. Reminders are
// scanned in list order; for each, thresholds are scanned largest first and
// the first untriggered one whose window has been entered fires. Overdue
// and completed reminders are skipped.
func (s *Scheduler) Poll(ctx context.Context) (*Event, bool) {
	now := s.now()
	for _, r := range s.reminders.All() {
		if r.Completed {
			continue
		}
		left := r.Due.Sub(now)
		if left < 0 {
			continue
		}
		for _, th := range models.Thresholds {
			if left > th.BeforeDue || r.HasTriggered(th.ID) {
				continue
			}
			ok, res := s.reminders.MarkTriggered(r.ID, th.ID)
			if !ok {
				continue
			}
			if err := res.Wait(ctx); err != nil {
				logger.Warn("Failed to persist triggered threshold", "reminder", r.ID, "threshold", th.ID, "error", err)
			}

			ev := Event{
				ReminderID:     r.ID,
				ThresholdID:    th.ID,
				ThresholdLabel: th.Label,
				Text:           r.Text,
				Due:            r.Due,
				FiredAt:        now,
			}
			metrics.Escalations.WithLabelValues(th.ID).Inc()
			s.mu.Lock()
			s.active = &ev
			s.mu.Unlock()

			if s.sink != nil {
				if err := s.sink.Notify(ctx, ev); err != nil {
					logger.Warn("Escalation delivery failed", "reminder", r.ID, "threshold", th.ID, "error", err)
				}
			}
			logger.Info("Reminder escalated", "reminder", r.ID, "threshold", th.Label)
			return &ev, true
		}
	}
	return nil, false
}

// Run polls immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Active returns the notification currently shown, if any.
func (s *Scheduler) Active() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Event{}, false
	}
	return *s.active, true
}

// Acknowledge completes the reminder, which ends its escalation for good,
// and clears its notification. Unknown ids are a no-op.
func (s *Scheduler) Acknowledge(ctx context.Context, reminderID string) error {
	s.clear(reminderID)
	return s.reminders.Complete(reminderID).Wait(ctx)
}

// Dismiss clears the reminder's notification only. Fired thresholds stay
// fired, so the next poll moves on to the next one.
func (s *Scheduler) Dismiss(reminderID string) bool {
	return s.clear(reminderID)
}

func (s *Scheduler) clear(reminderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ReminderID != reminderID {
		return false
	}
	s.active = nil
	return true
}
