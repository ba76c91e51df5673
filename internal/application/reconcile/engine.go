// Package reconcile implements the e-Transfer payment reconciliation engine:
// it polls the inbox for Interac bank notifications, matches them against
// unpaid passports with normalized fuzzy name matching and strict amount
// filtering, and commits the payment atomically.
//
// Commit ordering is the crash-safety contract: the source email is archived
// out of the inbox first, then the database transaction runs. A crash between
// the two leaves an unpaid passport and no email to reprocess, which is
// logged loudly and handled manually; it can never double-apply a payment.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/mail"
	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/domain/interac"
	"github.com/lpgagnon/passtrack-backend/internal/domain/match"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// candidate is one unpaid passport scored against a payment
type candidate struct {
	passport *storage.Passport
	score    int
	class    match.Class
}

// ReconcileOnce runs one poll tick: fetch, parse, dedupe, match, commit.
// One bad notification never stops the tick; connect and configuration
// failures abort it.
func (e *Engine) ReconcileOnce(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()[:8]
	log := e.logger.With("run", runID)

	s, err := settings.Load(e.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.RequireCredentials(); err != nil {
		return nil, err
	}

	gw := e.gateways(mail.Config{
		Server:        s.IMAPServer,
		Username:      s.Username,
		Password:      s.Password,
		SubjectPrefix: s.SubjectPrefix,
		BankFrom:      s.BankFrom,
	})

	log.Info("connecting to IMAP server", "server", s.IMAPServer)
	if err := gw.Connect(); err != nil {
		return nil, err
	}
	defer func() {
		if err := gw.Expunge(); err != nil {
			log.Error("expunge failed", "error", err)
		}
		if err := gw.Logout(); err != nil {
			log.Error("logout failed", "error", err)
		}
	}()

	messages, err := gw.FetchNotifications()
	if err != nil {
		return nil, err
	}

	summary := &Summary{Fetched: len(messages)}
	log.Info("fetched bank notifications", "count", len(messages))

	matcher := match.NewMatcher(s.NameConfidence)

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		transfer, err := interac.Parse(msg.Subject, msg.Date)
		if err != nil {
			// Unrecognized subjects are skipped without a payment log row
			log.Warn("skipped unparseable subject", "subject", msg.Subject, "error", err)
			summary.Skipped++
			continue
		}

		e.processNotification(ctx, gw, s, matcher, msg, transfer, summary)
	}

	e.ticks++
	if e.ticks%cleanupEvery == 0 {
		if deleted, err := e.store.CleanupDuplicateNoMatch(); err != nil {
			log.Error("duplicate cleanup failed", "error", err)
		} else if deleted > 0 {
			log.Info("cleaned up duplicate NO_MATCH rows", "deleted", deleted)
		}
	}

	return summary, nil
}

// processNotification handles one parsed bank notification end to end
func (e *Engine) processNotification(
	ctx context.Context,
	gw Gateway,
	s *settings.Settings,
	matcher *match.Matcher,
	msg *mail.Message,
	transfer *interac.Transfer,
	summary *Summary,
) {
	log := e.logger.With(
		"sender", transfer.SenderName,
		"amount", transfer.Amount.StringFixed(2),
	)
	log.Info("processing payment notification", "from", msg.FromEmail)

	// Duplicate suppression over the rolling window
	cutoff := e.clock().UTC().Add(-DuplicateWindow)
	existing, err := e.store.FindRecentDuplicate(transfer.SenderName, transfer.Amount, msg.FromEmail, cutoff)
	if err != nil {
		log.Error("duplicate lookup failed", "error", err)
		summary.Errored++
		return
	}
	if existing != nil {
		switch existing.Result {
		case storage.ResultMatched:
			log.Info("duplicate of already-applied payment, skipping",
				"existing_id", existing.ID, "observed_at", existing.ObservedAt)
			summary.Skipped++
			return
		case storage.ResultNoMatch:
			// Retry path: this tick updates the existing row instead of
			// inserting a new one
			log.Info("retrying previously unmatched notification", "existing_id", existing.ID)
		default:
			summary.Skipped++
			return
		}
	}
	var existingNoMatch *storage.PaymentNotification
	if existing != nil && existing.Result == storage.ResultNoMatch {
		existingNoMatch = existing
	}

	// Amount filter first: exact decimal equality eliminates whole classes
	// of false positives before any name scoring happens
	unpaid, err := e.store.UnpaidPassportsByAmount(transfer.Amount)
	if err != nil {
		log.Error("candidate query failed", "error", err)
		summary.Errored++
		return
	}
	log.Info("found unpaid passports at amount", "count", len(unpaid))

	var exact, fuzzy []candidate
	for _, p := range unpaid {
		if p.User == nil {
			continue
		}
		score := match.Score(transfer.SenderName, p.User.Name)
		class := matcher.Classify(score)
		log.Debug("scored candidate",
			"passport_id", p.ID, "name", p.User.Name,
			"score", score, "class", class.String(), "threshold", matcher.Threshold())

		switch class {
		case match.Exact:
			exact = append(exact, candidate{passport: p, score: score, class: class})
		case match.Fuzzy:
			fuzzy = append(fuzzy, candidate{passport: p, score: score, class: class})
		}
	}

	// Exact candidates discard fuzzy ones entirely
	chosen := exact
	if len(chosen) == 0 {
		chosen = fuzzy
	}

	if len(chosen) == 0 {
		e.recordNoMatch(s, matcher, msg, transfer, unpaid, existingNoMatch, summary)
		return
	}

	// Highest score first, oldest passport breaks ties
	sort.SliceStable(chosen, func(i, j int) bool {
		if chosen[i].score != chosen[j].score {
			return chosen[i].score > chosen[j].score
		}
		return chosen[i].passport.CreatedAt.Before(chosen[j].passport.CreatedAt)
	})

	best := chosen[0]
	if len(chosen) > 1 && best.score-chosen[1].score <= 5 {
		log.Warn("AMBIGUOUS: multiple candidates within 5 points, selecting best",
			"selected", best.passport.User.Name, "selected_score", best.score,
			"runner_up", chosen[1].passport.User.Name, "runner_up_score", chosen[1].score)
	}

	log.Info("MATCH FOUND",
		"passport_id", best.passport.ID, "name", best.passport.User.Name,
		"score", best.score, "class", best.class.String())

	e.commitMatch(ctx, gw, s, msg, transfer, best, existingNoMatch, summary)
}

// commitMatch applies a matched payment. Order matters: archive the email
// first, then run the database transaction. An archive failure aborts this
// notification entirely so the next tick can retry it.
func (e *Engine) commitMatch(
	ctx context.Context,
	gw Gateway,
	s *settings.Settings,
	msg *mail.Message,
	transfer *interac.Transfer,
	best candidate,
	existingNoMatch *storage.PaymentNotification,
	summary *Summary,
) {
	log := e.logger.With("passport_id", best.passport.ID, "sender", transfer.SenderName)

	if err := gw.Archive(msg.UID, s.ProcessedFolder); err != nil {
		log.Error("failed to archive email, aborting notification (will retry next tick)",
			"uid", msg.UID, "folder", s.ProcessedFolder, "error", err)
		summary.Errored++
		return
	}

	now := e.clock()

	note := "Matched by Gmail Bot."
	var existingID *int64
	if existingNoMatch != nil {
		existingID = &existingNoMatch.ID
		note = fmt.Sprintf("Matched by Gmail Bot on retry (first seen %s).",
			existingNoMatch.ObservedAt.Format("2006-01-02 15:04"))
	}

	err := e.store.ApplyMatch(storage.ApplyMatchParams{
		PassportID: best.passport.ID,
		PaidAt:     now,
		Actor:      BotActor,
		Notification: &storage.PaymentNotification{
			FromEmail:       msg.FromEmail,
			Subject:         msg.Subject,
			SenderName:      transfer.SenderName,
			Amount:          transfer.Amount,
			EmailReceivedAt: transfer.ReceivedAt,
			ObservedAt:      now,
		},
		ExistingID:    existingID,
		MatchedName:   best.passport.User.Name,
		MatchedAmount: best.passport.SoldAmt,
		Score:         best.score,
		Note:          note,
	})
	if err != nil {
		// The email is already archived but the passport is still unpaid.
		// This is the acknowledged failure mode: reconcile manually.
		log.Error("BUG: payment commit failed after email archive, passport needs manual reconciliation",
			"error", err)
		summary.Errored++
		return
	}

	// Persistence self-check
	fresh, err := e.store.GetPassport(best.passport.ID)
	if err != nil || fresh == nil {
		log.Error("BUG: failed to re-read passport after commit", "error", err)
	} else if fresh.MarkedPaidBy != BotActor {
		log.Error("BUG: passport persisted with unexpected actor",
			"marked_paid_by", fresh.MarkedPaidBy)
	} else {
		best.passport = fresh
	}

	summary.Matched++
	log.Info("passport marked paid", "score", best.score, "paid_at", now)

	// Downstream is fire-and-forget: failures never roll back the payment
	passport := best.passport
	e.dispatch(func() {
		event := notify.Event{
			Type:       notify.EventPaymentReceived,
			Passport:   passport,
			Activity:   passport.Activity,
			AdminEmail: BotActor,
			Timestamp:  now,
		}
		if err := e.notifier.NotifyPassEvent(ctx, event); err != nil {
			e.logger.Error("payment received email failed", "passport_id", passport.ID, "error", err)
		}
		e.notifier.EmitPaymentNotification(passport)
	})
}

// recordNoMatch writes or refreshes the NO_MATCH payment log row with a
// diagnostic note explaining why nothing matched
func (e *Engine) recordNoMatch(
	s *settings.Settings,
	matcher *match.Matcher,
	msg *mail.Message,
	transfer *interac.Transfer,
	unpaidAtAmount []*storage.Passport,
	existingNoMatch *storage.PaymentNotification,
	summary *Summary,
) {
	now := e.clock()
	note, bestScore := e.buildNoMatchNote(transfer, unpaidAtAmount, matcher.Threshold())

	e.logger.Warn("NO MATCH FOUND",
		"sender", transfer.SenderName,
		"amount", transfer.Amount.StringFixed(2),
		"note", note)

	if existingNoMatch != nil {
		if err := e.store.UpdateNoMatchNote(existingNoMatch.ID, note, now); err != nil {
			e.logger.Error("failed to update NO_MATCH row", "id", existingNoMatch.ID, "error", err)
			summary.Errored++
			return
		}
	} else {
		n := &storage.PaymentNotification{
			FromEmail:       msg.FromEmail,
			Subject:         msg.Subject,
			SenderName:      transfer.SenderName,
			Amount:          transfer.Amount,
			EmailReceivedAt: transfer.ReceivedAt,
			ObservedAt:      now,
			Result:          storage.ResultNoMatch,
			NameScore:       bestScore,
			Note:            note,
		}
		if err := e.store.InsertNotification(n); err != nil {
			e.logger.Error("failed to insert NO_MATCH row", "error", err)
			summary.Errored++
			return
		}
	}

	// The email stays in the inbox so a later tick can retry once a
	// matching passport exists
	summary.NoMatch++
}

// RunCleanup removes superseded duplicate NO_MATCH rows on demand
func (e *Engine) RunCleanup() (int64, error) {
	return e.store.CleanupDuplicateNoMatch()
}
