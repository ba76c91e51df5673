// Package notify is the downstream notification hook: it renders the
// "payment received" / "payment late" emails, writes the email audit log,
// and publishes real-time payment events for the admin dashboard.
//
// It is isolated behind small interfaces so the reconciliation engine can be
// tested without SMTP. Send failures never propagate back into payment
// state; they are logged and recorded in email_logs.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// EventType selects the email template and subject
type EventType string

const (
	EventPaymentReceived EventType = "payment_received"
	EventPaymentLate     EventType = "payment_late"
)

// Event is an immutable descriptor handed off by the engine or the
// reminder driver
type Event struct {
	Type       EventType
	Passport   *storage.Passport
	Activity   *storage.Activity
	AdminEmail string
	Timestamp  time.Time
}

// PaymentEvent is the JSON payload pushed to connected admin dashboards
type PaymentEvent struct {
	Type       string  `json:"type"`
	PassportID int64   `json:"passport_id"`
	UserName   string  `json:"user_name"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

// Publisher pushes real-time events to dashboards. Satisfied by api.Broker.
type Publisher interface {
	Publish(event interface{})
}

// Hook is what the engine and reminder driver see
type Hook interface {
	// NotifyPassEvent renders and sends the templated email for event,
	// returning synchronously so the caller can gate on success
	NotifyPassEvent(ctx context.Context, event Event) error

	// EmitPaymentNotification publishes the real-time payment event.
	// Failures are logged, never fatal.
	EmitPaymentNotification(passport *storage.Passport)
}

// Notifier implements Hook
type Notifier struct {
	sender    Sender
	emailLog  storage.EmailLogRepository
	publisher Publisher
	logger    *slog.Logger
}

var _ Hook = (*Notifier)(nil)

// NewNotifier creates a notifier. publisher may be nil (one-shot CLI runs).
func NewNotifier(sender Sender, emailLog storage.EmailLogRepository, publisher Publisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender:    sender,
		emailLog:  emailLog,
		publisher: publisher,
		logger:    logger,
	}
}

// NotifyPassEvent renders and sends the email for event, then writes the
// audit row. Users who opted out are skipped without error.
func (n *Notifier) NotifyPassEvent(_ context.Context, event Event) error {
	passport := event.Passport
	if passport == nil || passport.User == nil {
		return fmt.Errorf("event %s has no passport user", event.Type)
	}
	user := passport.User

	if user.EmailOptOut {
		n.logger.Info("skipping email, user opted out",
			"event", string(event.Type), "user", user.Name)
		return nil
	}

	activityName := ""
	if event.Activity != nil {
		activityName = event.Activity.Name
	}

	var subject string
	switch event.Type {
	case EventPaymentReceived:
		subject = fmt.Sprintf("Paiement reçu - %s", activityName)
	case EventPaymentLate:
		subject = fmt.Sprintf("Rappel de paiement - %s", activityName)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	err := n.sender.Send(SendParams{
		To:           user.Email,
		ToName:       user.Name,
		Subject:      subject,
		TemplateName: string(event.Type),
		Context: map[string]interface{}{
			"UserName":      user.Name,
			"Amount":        passport.SoldAmt.StringFixed(2),
			"ActivityName":  activityName,
			"PassCode":      passport.PassCode,
			"UsesRemaining": passport.UsesRemaining,
		},
	})

	status := "sent"
	if err != nil {
		status = "failed"
		n.logger.Error("failed to send email",
			"event", string(event.Type), "to", user.Email, "error", err)
	}

	logErr := n.emailLog.LogEmail(&storage.EmailLog{
		ToEmail:  user.Email,
		Subject:  subject,
		PassCode: passport.PassCode,
		Template: string(event.Type),
		Status:   status,
		SentAt:   event.Timestamp,
	})
	if logErr != nil {
		n.logger.Error("failed to write email log", "to", user.Email, "error", logErr)
	}

	return err
}

// EmitPaymentNotification publishes the real-time payment event for the
// admin dashboards
func (n *Notifier) EmitPaymentNotification(passport *storage.Passport) {
	if n.publisher == nil {
		return
	}

	userName := "Unknown"
	if passport.User != nil {
		userName = passport.User.Name
	}

	n.publisher.Publish(PaymentEvent{
		Type:       "payment",
		PassportID: passport.ID,
		UserName:   userName,
		Amount:     passport.SoldAmt.InexactFloat64(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
