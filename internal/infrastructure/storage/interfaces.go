package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	SettingsRepository
	PassportRepository
	PaymentLogRepository
	ReminderRepository
	EmailLogRepository
	Close() error
}

// SettingsRepository is the typed key/value configuration store consumed
// by the reconciliation engine at the start of every tick.
type SettingsRepository interface {
	// GetSetting returns the stored value for key, or "" when unset
	GetSetting(key string) (string, error)

	// SetSetting stores or replaces the value for key
	SetSetting(key, value string) error
}

// PassportRepository handles passport, user and activity operations
type PassportRepository interface {
	CreateUser(user *User) error
	CreateActivity(activity *Activity) error
	CreatePassport(passport *Passport) error

	// GetPassport retrieves a passport by ID with its user and activity joined
	GetPassport(id int64) (*Passport, error)

	// UnpaidPassportsByAmount returns unpaid passports whose sold amount
	// equals amt within a 1-cent tolerance, users joined, oldest first
	UnpaidPassportsByAmount(amt decimal.Decimal) ([]*Passport, error)

	// UnpaidPassports returns every unpaid passport, users joined
	UnpaidPassports() ([]*Passport, error)

	// UnpaidPassportsCreatedBefore returns unpaid passports created at or
	// before cutoff, used by the late-payment reminder sweep
	UnpaidPassportsCreatedBefore(cutoff time.Time) ([]*Passport, error)

	// PaidPassportsByAmount returns paid passports at amt, used to diagnose
	// duplicate bank notifications for already-settled passports
	PaidPassportsByAmount(amt decimal.Decimal) ([]*Passport, error)

	// MarkPassportPaid marks a passport paid outside the engine (admin action)
	MarkPassportPaid(id int64, paidAt time.Time, actor string) error

	// RedeemPassport decrements uses_remaining, never below zero
	RedeemPassport(id int64) error
}

// ApplyMatchParams carries everything the matched-payment commit needs.
// When ExistingID is set the engine promotes that NO_MATCH row instead of
// inserting a new one.
type ApplyMatchParams struct {
	PassportID    int64
	PaidAt        time.Time
	Actor         string
	Notification  *PaymentNotification
	ExistingID    *int64
	MatchedName   string
	MatchedAmount decimal.Decimal
	Score         int
	Note          string
}

// NotificationFilters defines filters for listing payment notifications
type NotificationFilters struct {
	Result Result // Filter by result (empty = all)
	Limit  int    // Max results (0 = default 50)
	Offset int    // Pagination offset
}

// PaymentLogRepository handles the append-mostly payment notification log
type PaymentLogRepository interface {
	// FindRecentDuplicate returns the most recent notification for the
	// (sender_name, amount, from_email) tuple observed after cutoff, or nil
	FindRecentDuplicate(senderName string, amount decimal.Decimal, fromEmail string, cutoff time.Time) (*PaymentNotification, error)

	// InsertNotification appends a new row and sets n.ID
	InsertNotification(n *PaymentNotification) error

	// UpdateNoMatchNote refreshes the note and observed_at of an existing
	// NO_MATCH row after a retried tick still found no match
	UpdateNoMatchNote(id int64, note string, observedAt time.Time) error

	// ApplyMatch commits the passport state transition and the MATCHED
	// payment log row in a single transaction
	ApplyMatch(p ApplyMatchParams) error

	// MarkManualProcessed is the terminal transition used by manual archive
	MarkManualProcessed(id int64, note string, observedAt time.Time) error

	// LatestNotificationByTuple returns the most recent row for the tuple
	// regardless of age, or nil
	LatestNotificationByTuple(senderName string, amount decimal.Decimal, fromEmail string) (*PaymentNotification, error)

	// CleanupDuplicateNoMatch deletes NO_MATCH rows that are not the latest
	// per (sender_name, amount, from_email) and returns how many went away
	CleanupDuplicateNoMatch() (int64, error)

	// ListNotifications returns payment log rows, newest first
	ListNotifications(filters NotificationFilters) ([]*PaymentNotification, error)
}

// ReminderRepository handles late-payment reminder tracking
type ReminderRepository interface {
	// LastReminder returns the most recent reminder for a passport, or nil
	LastReminder(passportID int64) (*ReminderLog, error)

	// LogReminder records a sent reminder
	LogReminder(passportID int64, sentAt time.Time) error
}

// EmailLogRepository handles the outbound email audit trail
type EmailLogRepository interface {
	// LogEmail records one outbound email attempt
	LogEmail(entry *EmailLog) error
}
