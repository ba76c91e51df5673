package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

type stubHook struct {
	events  []notify.Event
	sendErr error
}

func (h *stubHook) NotifyPassEvent(_ context.Context, event notify.Event) error {
	if h.sendErr != nil {
		return h.sendErr
	}
	h.events = append(h.events, event)
	return nil
}

func (h *stubHook) EmitPaymentNotification(_ *storage.Passport) {}

type driverFixture struct {
	driver *Driver
	store  *storage.Storage
	hook   *stubHook
	now    time.Time
}

// newDriverFixture runs the sweep with a clock 20 days ahead of the seeded
// passports, so freshly created rows are already past the default 15-day
// callback window
func newDriverFixture(t *testing.T) *driverFixture {
	t.Helper()

	store, err := storage.NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hook := &stubHook{}
	now := time.Now().UTC().Add(20 * 24 * time.Hour).Truncate(time.Second)

	driver := NewDriver(store, hook, nil, WithClock(func() time.Time { return now }))
	return &driverFixture{driver: driver, store: store, hook: hook, now: now}
}

func (f *driverFixture) seedPassport(t *testing.T, name string, optOut bool) *storage.Passport {
	t.Helper()

	user := &storage.User{Name: name, Email: "user@example.com", EmailOptOut: optOut}
	require.NoError(t, f.store.CreateUser(user))

	activity := &storage.Activity{Name: "Escalade"}
	require.NoError(t, f.store.CreateActivity(activity))

	passport := &storage.Passport{
		PassCode:      "PC-" + name,
		UserID:        user.ID,
		ActivityID:    activity.ID,
		SoldAmt:       decimal.RequireFromString("50.00"),
		UsesRemaining: 10,
	}
	require.NoError(t, f.store.CreatePassport(passport))
	return passport
}

func TestSweepSendsAndLogs(t *testing.T) {
	f := newDriverFixture(t)
	passport := f.seedPassport(t, "Samuel Turbide", false)

	summary, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Sent)

	require.Len(t, f.hook.events, 1)
	assert.Equal(t, notify.EventPaymentLate, f.hook.events[0].Type)
	assert.Equal(t, Actor, f.hook.events[0].AdminEmail)

	last, err := f.store.LastReminder(passport.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, f.now.Equal(last.SentAt))
}

func TestSweepThrottlesWithinWindow(t *testing.T) {
	f := newDriverFixture(t)
	f.seedPassport(t, "Samuel Turbide", false)

	_, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)

	summary, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, f.hook.events, 1)
}

func TestSweepForceResends(t *testing.T) {
	f := newDriverFixture(t)
	f.seedPassport(t, "Samuel Turbide", false)

	_, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)

	summary, err := f.driver.SendUnpaidReminders(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Len(t, f.hook.events, 2)
}

func TestSweepFailedSendNotLogged(t *testing.T) {
	f := newDriverFixture(t)
	passport := f.seedPassport(t, "Samuel Turbide", false)
	f.hook.sendErr = assert.AnError

	summary, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Errored)

	// No log row means the next sweep retries this passport
	last, err := f.store.LastReminder(passport.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	f.hook.sendErr = nil
	summary, err = f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestSweepSkipsOptedOut(t *testing.T) {
	f := newDriverFixture(t)
	f.seedPassport(t, "Samuel Turbide", true)

	summary, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.hook.events)
}

func TestSweepIgnoresRecentPassports(t *testing.T) {
	f := newDriverFixture(t)
	f.seedPassport(t, "Samuel Turbide", false)

	// Pull the clock back to one day after creation, inside the window
	recent := time.Now().UTC().Add(24 * time.Hour)
	driver := NewDriver(f.store, f.hook, nil, WithClock(func() time.Time { return recent }))

	summary, err := driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
	assert.Empty(t, f.hook.events)
}

func TestSweepSkipsPaidPassports(t *testing.T) {
	f := newDriverFixture(t)
	passport := f.seedPassport(t, "Samuel Turbide", false)
	require.NoError(t, f.store.MarkPassportPaid(passport.ID, time.Now().UTC(), "admin@example.com"))

	summary, err := f.driver.SendUnpaidReminders(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
}
