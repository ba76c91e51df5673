// Package reminder implements the late-payment reminder sweep: unpaid
// passports older than the callback window get a templated reminder email,
// throttled so a customer is never nagged more than once per window.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// Actor is the audit identity reminders are attributed to
const Actor = "auto-reminder@system"

// Summary reports what one sweep did
type Summary struct {
	Scanned int
	Sent    int
	Skipped int
	Errored int
}

// Driver runs reminder sweeps. Like the reconciliation engine it owns no
// connections; storage and the notification hook are injected.
type Driver struct {
	store    storage.Repository
	notifier notify.Hook
	logger   *slog.Logger
	clock    func() time.Time
}

// Option customizes a Driver
type Option func(*Driver)

// WithClock injects a deterministic clock for tests
func WithClock(clock func() time.Time) Option {
	return func(d *Driver) { d.clock = clock }
}

// NewDriver creates a reminder driver
func NewDriver(store storage.Repository, notifier notify.Hook, logger *slog.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		store:    store,
		notifier: notifier,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// SendUnpaidReminders sweeps unpaid passports older than the callback window
// and sends one reminder each. A passport already reminded within the window
// is skipped unless force is set. The reminder log row is written only after
// the email actually went out, so a failed send is retried on the next sweep.
func (d *Driver) SendUnpaidReminders(ctx context.Context, force bool) (*Summary, error) {
	s, err := settings.Load(d.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	now := d.clock()
	window := time.Duration(s.CallbackDays) * 24 * time.Hour
	cutoff := now.Add(-window)

	passports, err := d.store.UnpaidPassportsCreatedBefore(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue passports: %w", err)
	}

	summary := &Summary{Scanned: len(passports)}
	d.logger.Info("reminder sweep started",
		"overdue", len(passports), "callback_days", s.CallbackDays, "force", force)

	for _, p := range passports {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if p.User == nil {
			continue
		}
		if p.User.EmailOptOut {
			d.logger.Debug("skipping reminder, user opted out",
				"passport_id", p.ID, "user", p.User.Name)
			summary.Skipped++
			continue
		}

		if !force {
			last, err := d.store.LastReminder(p.ID)
			if err != nil {
				d.logger.Error("reminder lookup failed", "passport_id", p.ID, "error", err)
				summary.Errored++
				continue
			}
			if last != nil && now.Sub(last.SentAt) < window {
				summary.Skipped++
				continue
			}
		}

		event := notify.Event{
			Type:       notify.EventPaymentLate,
			Passport:   p,
			Activity:   p.Activity,
			AdminEmail: Actor,
			Timestamp:  now,
		}
		if err := d.notifier.NotifyPassEvent(ctx, event); err != nil {
			d.logger.Error("reminder email failed",
				"passport_id", p.ID, "user", p.User.Name, "error", err)
			summary.Errored++
			continue
		}

		if err := d.store.LogReminder(p.ID, now); err != nil {
			d.logger.Error("failed to record sent reminder", "passport_id", p.ID, "error", err)
			summary.Errored++
			continue
		}

		d.logger.Info("reminder sent",
			"passport_id", p.ID, "user", p.User.Name,
			"amount", p.SoldAmt.StringFixed(2))
		summary.Sent++
	}

	d.logger.Info("reminder sweep finished",
		"sent", summary.Sent, "skipped", summary.Skipped, "errored", summary.Errored)
	return summary, nil
}
