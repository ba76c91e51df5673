package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result is the outcome recorded for an observed bank notification.
type Result string

const (
	ResultMatched         Result = "MATCHED"
	ResultNoMatch         Result = "NO_MATCH"
	ResultManualProcessed Result = "MANUAL_PROCESSED"
)

// User holds passports. Names are free-form and may carry accents; the
// matcher normalizes them before scoring.
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	EmailOptOut bool      `json:"email_opt_out"`
	CreatedAt   time.Time `json:"created_at"`
}

// Activity is a season/program a passport grants access to.
type Activity struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Passport is a sold pass. The reconciliation engine is the only writer of
// the paid/paid_at/marked_paid_by triple besides the admin mark-paid action.
type Passport struct {
	ID            int64           `json:"id"`
	PassCode      string          `json:"pass_code"`
	UserID        int64           `json:"user_id"`
	ActivityID    int64           `json:"activity_id"`
	SoldAmt       decimal.Decimal `json:"sold_amt"`
	UsesRemaining int             `json:"uses_remaining"`
	Paid          bool            `json:"paid"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	MarkedPaidBy  string          `json:"marked_paid_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`

	// Joined relations, populated by queries that need them
	User     *User     `json:"user,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
}

// PaymentNotification is one row per observed bank email, matched or not.
// NO_MATCH rows are retried on later ticks; MANUAL_PROCESSED is terminal.
type PaymentNotification struct {
	ID                int64            `json:"id"`
	FromEmail         string           `json:"from_email"`
	Subject           string           `json:"subject"`
	SenderName        string           `json:"sender_name"`
	Amount            decimal.Decimal  `json:"amount"`
	EmailReceivedAt   time.Time        `json:"email_received_at"`
	ObservedAt        time.Time        `json:"observed_at"`
	Result            Result           `json:"result"`
	MatchedPassportID *int64           `json:"matched_passport_id,omitempty"`
	MatchedName       string           `json:"matched_name,omitempty"`
	MatchedAmount     *decimal.Decimal `json:"matched_amount,omitempty"`
	NameScore         int              `json:"name_score"`
	Note              string           `json:"note"`
}

// ReminderLog records one late-payment reminder per row. The driver only
// writes a row after the reminder email was actually sent.
type ReminderLog struct {
	ID         int64     `json:"id"`
	PassportID int64     `json:"passport_id"`
	SentAt     time.Time `json:"sent_at"`
}

// EmailLog is the audit row written by the notification workers.
type EmailLog struct {
	ID       int64     `json:"id"`
	ToEmail  string    `json:"to_email"`
	Subject  string    `json:"subject"`
	PassCode string    `json:"pass_code,omitempty"`
	Template string    `json:"template"`
	Status   string    `json:"status"`
	SentAt   time.Time `json:"sent_at"`
}
