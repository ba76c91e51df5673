package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/mail"
	"github.com/lpgagnon/passtrack-backend/internal/domain/interac"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// amountTolerance mirrors the storage layer's 1-cent amount comparison
var amountTolerance = decimal.New(1, -2)

// ArchiveManually closes out a logged notification by hand: the matching
// inbox email (if still present) moves to the manual folder and the payment
// log row becomes MANUAL_PROCESSED with the admin's note.
//
// The email being gone is not an error. An admin typically archives after
// the payment was settled out of band, often days later, and the message may
// already have been filed away in the mail client.
func (e *Engine) ArchiveManually(ctx context.Context, senderName string, amount decimal.Decimal, fromEmail, customNote string) (string, error) {
	existing, err := e.store.LatestNotificationByTuple(senderName, amount, fromEmail)
	if err != nil {
		return "", fmt.Errorf("failed to look up payment log: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("no logged payment from %q for $%s", senderName, amount.StringFixed(2))
	}
	if existing.Result != storage.ResultNoMatch {
		return "", fmt.Errorf("payment %d is already %s", existing.ID, existing.Result)
	}

	archived, archiveErr := e.archiveInboxEmail(ctx, senderName, amount)
	if archiveErr != nil {
		e.logger.Warn("manual archive could not reach the inbox, marking log row only",
			"sender", senderName, "error", archiveErr)
	}

	now := e.clock()
	note := customNote
	if note == "" {
		note = "Archived manually."
	}
	if !archived {
		note += " (email no longer in inbox)"
	}

	if err := e.store.MarkManualProcessed(existing.ID, note, now); err != nil {
		return "", fmt.Errorf("failed to mark payment %d processed: %w", existing.ID, err)
	}

	e.logger.Info("payment archived manually",
		"id", existing.ID, "sender", senderName,
		"amount", amount.StringFixed(2), "email_found", archived)

	if archived {
		return fmt.Sprintf("Payment from %s ($%s) archived; email moved to manual folder.",
			senderName, amount.StringFixed(2)), nil
	}
	return fmt.Sprintf("Payment from %s ($%s) archived; email was no longer in the inbox.",
		senderName, amount.StringFixed(2)), nil
}

// archiveInboxEmail finds the notification email for the tuple and moves it
// to the manual folder. Returns whether a matching email was found.
func (e *Engine) archiveInboxEmail(ctx context.Context, senderName string, amount decimal.Decimal) (bool, error) {
	s, err := settings.Load(e.store)
	if err != nil {
		return false, err
	}
	if err := s.RequireCredentials(); err != nil {
		return false, err
	}

	gw := e.gateways(mail.Config{
		Server:        s.IMAPServer,
		Username:      s.Username,
		Password:      s.Password,
		SubjectPrefix: s.SubjectPrefix,
		BankFrom:      s.BankFrom,
	})
	if err := gw.Connect(); err != nil {
		return false, err
	}
	defer func() {
		if err := gw.Expunge(); err != nil {
			e.logger.Error("expunge failed", "error", err)
		}
		if err := gw.Logout(); err != nil {
			e.logger.Error("logout failed", "error", err)
		}
	}()

	messages, err := gw.FetchNotifications()
	if err != nil {
		return false, err
	}

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		transfer, err := interac.Parse(msg.Subject, msg.Date)
		if err != nil {
			continue
		}
		if !strings.EqualFold(transfer.SenderName, senderName) {
			continue
		}
		if transfer.Amount.Sub(amount).Abs().GreaterThanOrEqual(amountTolerance) {
			continue
		}

		if err := gw.Archive(msg.UID, s.ManualFolder); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}
