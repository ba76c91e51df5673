package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(name, amount, fromEmail string, result Result, observedAt time.Time) *PaymentNotification {
	amt, _ := decimal.NewFromString(amount)
	return &PaymentNotification{
		FromEmail:       fromEmail,
		Subject:         "Virement Interac : Vous avez reçu " + amount + " $ de " + name,
		SenderName:      name,
		Amount:          amt,
		EmailReceivedAt: observedAt,
		ObservedAt:      observedAt,
		Result:          result,
		Note:            "No matching passport found.",
	}
}

func TestFindRecentDuplicate_Window(t *testing.T) {
	store := newTestStorage(t)
	// Fixed reference time keeps the window arithmetic deterministic
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-48 * time.Hour)
	amt := decimal.NewFromFloat(50.00)

	// Old row outside the 48h window
	old := newNotification("SAMUEL TURBIDE", "50.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-72*time.Hour))
	require.NoError(t, store.InsertNotification(old))

	dup, err := store.FindRecentDuplicate("SAMUEL TURBIDE", amt, "notify@payments.interac.ca", cutoff)
	require.NoError(t, err)
	assert.Nil(t, dup, "rows older than the window are not duplicates")

	// Recent row inside the window
	recent := newNotification("SAMUEL TURBIDE", "50.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-2*time.Hour))
	require.NoError(t, store.InsertNotification(recent))

	dup, err = store.FindRecentDuplicate("SAMUEL TURBIDE", amt, "notify@payments.interac.ca", cutoff)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, recent.ID, dup.ID)
	assert.Equal(t, ResultNoMatch, dup.Result)

	// Different tuple member misses
	dup, err = store.FindRecentDuplicate("SAMUEL TURBIDE", amt, "other@example.com", cutoff)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestApplyMatch_Insert(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC().Truncate(time.Second)

	passport := seedPassport(t, store, "Samuel Turbide", "sam@example.com", "50.00", now.AddDate(0, 0, -5))

	n := newNotification("SAMUEL TURBIDE", "50.00", "notify@payments.interac.ca", ResultMatched, now)
	err := store.ApplyMatch(ApplyMatchParams{
		PassportID:    passport.ID,
		PaidAt:        now,
		Actor:         "gmail-bot@system",
		Notification:  n,
		MatchedName:   "Samuel Turbide",
		MatchedAmount: decimal.NewFromFloat(50.00),
		Score:         100,
		Note:          "Matched by Gmail Bot.",
	})
	require.NoError(t, err)

	got, err := store.GetPassport(passport.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	assert.Equal(t, "gmail-bot@system", got.MarkedPaidBy)

	rows, err := store.ListNotifications(NotificationFilters{Result: ResultMatched})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].MatchedPassportID)
	assert.Equal(t, passport.ID, *rows[0].MatchedPassportID)
	assert.Equal(t, 100, rows[0].NameScore)
	require.NotNil(t, rows[0].MatchedAmount)
	assert.True(t, rows[0].MatchedAmount.Equal(decimal.NewFromFloat(50.00)))
}

func TestApplyMatch_PromotesExistingRow(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Tick 1 recorded NO_MATCH; the passport shows up later
	existing := newNotification("JEAN BELANGER", "80.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-time.Hour))
	require.NoError(t, store.InsertNotification(existing))

	passport := seedPassport(t, store, "Jean Bélanger", "jean@example.com", "80.00", now)

	n := newNotification("JEAN BELANGER", "80.00", "notify@payments.interac.ca", ResultMatched, now)
	err := store.ApplyMatch(ApplyMatchParams{
		PassportID:    passport.ID,
		PaidAt:        now,
		Actor:         "gmail-bot@system",
		Notification:  n,
		ExistingID:    &existing.ID,
		MatchedName:   "Jean Bélanger",
		MatchedAmount: decimal.NewFromFloat(80.00),
		Score:         100,
		Note:          "Matched by Gmail Bot (retry).",
	})
	require.NoError(t, err)

	// Exactly one row for the tuple, promoted in place
	all, err := store.ListNotifications(NotificationFilters{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, existing.ID, all[0].ID)
	assert.Equal(t, ResultMatched, all[0].Result)
	require.NotNil(t, all[0].MatchedPassportID)
	assert.Equal(t, passport.ID, *all[0].MatchedPassportID)
}

func TestApplyMatch_AlreadyPaidRollsBack(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC()

	passport := seedPassport(t, store, "Samuel Turbide", "sam@example.com", "50.00", now.AddDate(0, 0, -5))
	require.NoError(t, store.MarkPassportPaid(passport.ID, now, "admin@example.com"))

	n := newNotification("SAMUEL TURBIDE", "50.00", "notify@payments.interac.ca", ResultMatched, now)
	err := store.ApplyMatch(ApplyMatchParams{
		PassportID:    passport.ID,
		PaidAt:        now,
		Actor:         "gmail-bot@system",
		Notification:  n,
		MatchedName:   "Samuel Turbide",
		MatchedAmount: decimal.NewFromFloat(50.00),
		Score:         100,
		Note:          "Matched by Gmail Bot.",
	})
	require.Error(t, err)

	// Nothing was written: actor is untouched and the log stays empty
	got, err := store.GetPassport(passport.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", got.MarkedPaidBy)

	rows, err := store.ListNotifications(NotificationFilters{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkManualProcessed(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC().Truncate(time.Second)

	n := newNotification("YANNICK DRAPEAU", "55.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-time.Hour))
	require.NoError(t, store.InsertNotification(n))

	require.NoError(t, store.MarkManualProcessed(n.ID, "Handled by operator.", now))

	rows, err := store.ListNotifications(NotificationFilters{Result: ResultManualProcessed})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Handled by operator.", rows[0].Note)

	// Terminal: a second transition fails
	assert.Error(t, store.MarkManualProcessed(n.ID, "again", now))
}

func TestCleanupDuplicateNoMatch(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC()

	// Three NO_MATCH rows for the same tuple, one for another tuple,
	// and one MATCHED row that must never be touched
	for i := 3; i >= 1; i-- {
		n := newNotification("JEAN BELANGER", "80.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-time.Duration(i)*time.Hour))
		require.NoError(t, store.InsertNotification(n))
	}
	other := newNotification("MARC GAGNON", "60.00", "notify@payments.interac.ca", ResultNoMatch, now)
	require.NoError(t, store.InsertNotification(other))
	matched := newNotification("SAMUEL TURBIDE", "50.00", "notify@payments.interac.ca", ResultMatched, now)
	require.NoError(t, store.InsertNotification(matched))

	deleted, err := store.CleanupDuplicateNoMatch()
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.ListNotifications(NotificationFilters{Result: ResultNoMatch})
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	// The surviving row for the duplicated tuple is the latest one
	latest, err := store.LatestNotificationByTuple("JEAN BELANGER", decimal.NewFromFloat(80.00), "notify@payments.interac.ca")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.WithinDuration(t, now.Add(-time.Hour), latest.ObservedAt, 2*time.Second)
}

func TestListNotifications_FilterAndLimit(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		n := newNotification("NAME", "10.00", "notify@payments.interac.ca", ResultNoMatch, now.Add(-time.Duration(i)*time.Minute))
		n.SenderName = n.SenderName + string(rune('A'+i))
		require.NoError(t, store.InsertNotification(n))
	}

	rows, err := store.ListNotifications(NotificationFilters{Limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Newest first
	assert.True(t, rows[0].ObservedAt.After(rows[1].ObservedAt))

	rows, err = store.ListNotifications(NotificationFilters{Result: ResultMatched})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
