package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lpgagnon/passtrack-backend/internal/domain/interac"
	"github.com/lpgagnon/passtrack-backend/internal/domain/match"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// closestFloor is the minimum score a rejected candidate needs to appear in
// the diagnostic note. Below this the name is noise, not a near miss.
const closestFloor = 50

// maxClosest caps how many near misses the note lists
const maxClosest = 3

// buildNoMatchNote explains why a notification matched nothing. The note is
// what an admin reads in the payment log before deciding to fix a name or
// archive manually, so it carries the most likely cause first:
//
//  1. a paid passport at the same amount with an exact name match means the
//     bank re-sent a notification for an already-settled payment
//  2. unpaid passports at the amount exist but every name scored too low
//  3. no unpaid passport carries this amount at all
//
// It also returns the best score seen among unpaid candidates for the log row.
func (e *Engine) buildNoMatchNote(transfer *interac.Transfer, unpaidAtAmount []*storage.Passport, threshold int) (string, int) {
	if note := e.probePaidPassports(transfer); note != "" {
		return note, 0
	}

	if len(unpaidAtAmount) > 0 {
		return closestCandidatesNote(transfer, unpaidAtAmount, threshold)
	}

	return e.availableAmountsNote(transfer), 0
}

// probePaidPassports checks whether an already-paid passport explains the
// notification. Only an exact-class name match is conclusive enough to report.
func (e *Engine) probePaidPassports(transfer *interac.Transfer) string {
	paid, err := e.store.PaidPassportsByAmount(transfer.Amount)
	if err != nil {
		e.logger.Error("paid passport probe failed", "error", err)
		return ""
	}

	for _, p := range paid {
		if p.User == nil || p.PaidAt == nil {
			continue
		}
		if match.Score(transfer.SenderName, p.User.Name) < match.ExactThreshold {
			continue
		}

		amt, _ := p.SoldAmt.Float64()
		delta := transfer.ReceivedAt.Sub(*p.PaidAt)
		minutes := int(delta.Minutes())
		var timing string
		if minutes >= 0 {
			timing = fmt.Sprintf("%d min after passport marked paid", minutes)
		} else {
			timing = fmt.Sprintf("%d min before email received", -minutes)
		}

		return fmt.Sprintf("MATCH FOUND: %s ($%.2f, Passport #%d) - Already marked PAID by %s on %s (%s)",
			p.User.Name, amt, p.ID,
			p.MarkedPaidBy, p.PaidAt.Format("2006-01-02 15:04"),
			timing)
	}

	return ""
}

// closestCandidatesNote lists the best-scoring rejected names so an admin can
// spot a typo'd customer name at a glance
func closestCandidatesNote(transfer *interac.Transfer, unpaid []*storage.Passport, threshold int) (string, int) {
	var scored []candidate
	for _, p := range unpaid {
		if p.User == nil {
			continue
		}
		scored = append(scored, candidate{
			passport: p,
			score:    match.Score(transfer.SenderName, p.User.Name),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	best := 0
	if len(scored) > 0 {
		best = scored[0].score
	}

	var closest []string
	for _, c := range scored {
		if c.score < closestFloor || len(closest) == maxClosest {
			break
		}
		closest = append(closest, fmt.Sprintf("%s (%d%%)", c.passport.User.Name, c.score))
	}

	amt, _ := transfer.Amount.Float64()
	if len(closest) == 0 {
		// No near miss to show. List a few unpaid names at this amount so
		// the admin still has something concrete to compare against.
		var names []string
		for _, c := range scored {
			if len(names) == maxClosest {
				break
			}
			names = append(names, c.passport.User.Name)
		}
		note := fmt.Sprintf("No name above %d%% confidence for $%.2f. %d unpaid passport(s) at this amount, none close to '%s'.",
			threshold, amt, len(unpaid), transfer.SenderName)
		if len(names) > 0 {
			note += fmt.Sprintf(" Available names: %s", strings.Join(names, ", "))
		}
		return note, best
	}
	return fmt.Sprintf("No name above %d%% confidence for $%.2f. Closest: %s",
		threshold, amt, strings.Join(closest, ", ")), best
}

// availableAmountsNote reports what unpaid amounts do exist, which usually
// exposes a sender who paid the wrong price
func (e *Engine) availableAmountsNote(transfer *interac.Transfer) string {
	amt, _ := transfer.Amount.Float64()

	unpaid, err := e.store.UnpaidPassports()
	if err != nil {
		e.logger.Error("unpaid passport listing failed", "error", err)
		return fmt.Sprintf("No unpaid passports for $%.2f.", amt)
	}
	if len(unpaid) == 0 {
		return fmt.Sprintf("No unpaid passports for $%.2f. No unpaid passports exist at all.", amt)
	}

	seen := make(map[string]bool)
	var amounts []string
	for _, p := range unpaid {
		s := p.SoldAmt.StringFixed(2)
		if !seen[s] {
			seen[s] = true
			amounts = append(amounts, "$"+s)
		}
	}
	sort.Strings(amounts)

	return fmt.Sprintf("No unpaid passports for $%.2f. Available unpaid amounts: %s",
		amt, strings.Join(amounts, ", "))
}
