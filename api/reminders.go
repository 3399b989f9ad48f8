/*
reminders.go - Daily payment reminder job

PURPOSE:
  Periodically scans pending payments and writes a notification for the
  tenant when a payment is due soon or already overdue. It never creates
  or changes payments.

DESIGN:
  - Runs on a cron schedule (robfig/cron), default every day at 09:00
  - Overlapping runs are skipped, never queued
  - Notifications are unique per (payment, kind, day), so a rerun on the
    same day writes nothing new

KINDS:
  payment_due_soon:  pending, due within [today, today+DaysAhead]
  payment_overdue:   pending, due before today

USAGE:
  reminders := NewPaymentReminders(store, clock)
  reminders.Start()
  // ... later
  reminders.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: notifications table
  - handlers.go: GET /api/notifications
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/rent-scheduler/schedule"
	"github.com/warp/rent-scheduler/store/sqlite"
)

const (
	KindPaymentDueSoon = "payment_due_soon"
	KindPaymentOverdue = "payment_overdue"
)

// ReminderStore is what the reminder job needs from persistence.
type ReminderStore interface {
	FindPayments(ctx context.Context, filter schedule.PaymentFilter) ([]schedule.Payment, error)
	SaveNotification(ctx context.Context, n sqlite.Notification) (bool, error)
}

// PaymentReminders writes due-soon and overdue notifications on a schedule.
type PaymentReminders struct {
	Store     ReminderStore
	Clock     schedule.Clock
	Spec      string
	DaysAhead int
	Enabled   bool

	cron *cron.Cron
	mu   sync.Mutex
}

// ReminderRun summarizes one pass of the job.
type ReminderRun struct {
	DueSoon int
	Overdue int
}

// NewPaymentReminders creates a reminder job with default settings.
func NewPaymentReminders(store ReminderStore, clock schedule.Clock) *PaymentReminders {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &PaymentReminders{
		Store:     store,
		Clock:     clock,
		Spec:      "0 9 * * *",
		DaysAhead: 3,
		Enabled:   true,
	}
}

// Start registers the job and starts the cron runner.
func (pr *PaymentReminders) Start() error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if !pr.Enabled {
		log.Println("[Reminders] Disabled, not starting")
		return nil
	}
	if pr.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(pr.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := pr.RunNow(ctx); err != nil {
			log.Printf("[Reminders] Run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", pr.Spec, err)
	}
	c.Start()
	pr.cron = c

	log.Printf("[Reminders] Started schedule=%q days_ahead=%d", pr.Spec, pr.DaysAhead)
	return nil
}

// Stop stops the cron runner and waits for a running pass to finish.
func (pr *PaymentReminders) Stop() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.cron != nil {
		<-pr.cron.Stop().Done()
		pr.cron = nil
		log.Println("[Reminders] Stopped")
	}
}

// RunNow performs one pass immediately.
func (pr *PaymentReminders) RunNow(ctx context.Context) (*ReminderRun, error) {
	today := schedule.Today(pr.Clock)
	now := pr.Clock.Now()
	run := &ReminderRun{}

	dueSoon, err := pr.Store.FindPayments(ctx, schedule.PaymentFilter{
		Status:  schedule.PaymentPending,
		DueFrom: today,
		DueTo:   today.AddDays(pr.DaysAhead),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming payments: %w", err)
	}
	for _, p := range dueSoon {
		msg := fmt.Sprintf("Your %s payment of %s %s is due on %s", p.Type, p.Amount.StringFixed(2), p.Currency, p.DueDate)
		inserted, err := pr.notify(ctx, p, KindPaymentDueSoon, msg, today, now)
		if err != nil {
			return nil, err
		}
		if inserted {
			run.DueSoon++
		}
	}

	overdue, err := pr.Store.FindPayments(ctx, schedule.PaymentFilter{
		Status: schedule.PaymentPending,
		DueTo:  today.AddDays(-1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue payments: %w", err)
	}
	for _, p := range overdue {
		msg := fmt.Sprintf("Your %s payment of %s %s was due on %s", p.Type, p.Amount.StringFixed(2), p.Currency, p.DueDate)
		inserted, err := pr.notify(ctx, p, KindPaymentOverdue, msg, today, now)
		if err != nil {
			return nil, err
		}
		if inserted {
			run.Overdue++
		}
	}

	log.Printf("[Reminders] %s: due_soon=%d overdue=%d", today, run.DueSoon, run.Overdue)
	return run, nil
}

func (pr *PaymentReminders) notify(ctx context.Context, p schedule.Payment, kind, msg string, today schedule.Date, now time.Time) (bool, error) {
	inserted, err := pr.Store.SaveNotification(ctx, sqlite.Notification{
		ID:        schedule.NewID(),
		UserID:    p.UserID,
		PaymentID: p.ID,
		Kind:      kind,
		Message:   msg,
		ForDate:   today,
		CreatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to save %s notification for payment %s: %w", kind, p.ID, err)
	}
	return inserted, nil
}
