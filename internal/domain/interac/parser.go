// Package interac parses Interac e-Transfer notification subjects.
//
// The originating bank sends a templated French subject line such as:
//
//	Virement Interac : Vous avez reçu 50, 00 $ de SAMUEL TURBIDE et ce
//	montant a été déposé dans votre compte.
//
// Parsing is pure and deterministic so the rest of the pipeline can be
// tested without IMAP. Extending to another bank means adding a pattern
// pair here.
package interac

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a parsed bank notification
type Transfer struct {
	SenderName string
	Amount     decimal.Decimal
	ReceivedAt time.Time
}

// ParseError indicates a subject that matched no known Interac pattern
type ParseError struct {
	Subject string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable bank subject %q: %s", e.Subject, e.Reason)
}

// Subject patterns, tried in order. Amounts must be in the French
// comma-decimal form; a bare integer like "98" is rejected. Interac pads
// amounts with regular and non-breaking spaces, both are tolerated.
var (
	// "…reçu 50, 00 $ de SAMUEL TURBIDE et ce montant…"
	receivedAmountRe = regexp.MustCompile(`reçu\s+(\d[\d\s\x{00a0}]*,\s*\d{2})\s*\$\s*de`)
	receivedNameRe   = regexp.MustCompile(`de\s+(.+?)\s+et ce montant`)

	// "Virement Interac : Remi Methot vous a envoyé 15,00 $"
	sentAmountRe = regexp.MustCompile(`envoyé\s+(\d[\d\s\x{00a0}]*,\s*\d{2})\s*\$`)
	sentNameRe   = regexp.MustCompile(`:\s*(.*?)\s+vous a envoyé`)
)

// Parse extracts the sender name and amount from a decoded subject line.
// The date comes from the message's Date header and is normalized to UTC.
func Parse(subject string, date time.Time) (*Transfer, error) {
	amountMatch := receivedAmountRe.FindStringSubmatch(subject)
	nameMatch := receivedNameRe.FindStringSubmatch(subject)

	// Fallback: "X vous a envoyé N $" form
	if amountMatch == nil {
		amountMatch = sentAmountRe.FindStringSubmatch(subject)
	}
	if nameMatch == nil {
		nameMatch = sentNameRe.FindStringSubmatch(subject)
	}

	if amountMatch == nil || nameMatch == nil {
		return nil, &ParseError{Subject: subject, Reason: "no amount/name pattern matched"}
	}

	amount, err := parseAmount(amountMatch[1])
	if err != nil {
		return nil, &ParseError{Subject: subject, Reason: err.Error()}
	}

	return &Transfer{
		SenderName: strings.TrimSpace(nameMatch[1]),
		Amount:     amount,
		ReceivedAt: date.UTC(),
	}, nil
}

// parseAmount normalizes a French-format amount: internal whitespace is
// stripped and the comma decimal separator becomes a dot.
// "98, 00" -> 98.00, "1 234,56" -> 1234.56
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount format %q", raw)
	}
	return amount, nil
}

// SubjectMatches reports whether subject starts with the configured bank
// prefix, case-insensitively. Applied at the gateway boundary before any
// pattern matching.
func SubjectMatches(subject, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(subject), strings.ToLower(prefix))
}

// SenderMatches reports whether fromEmail equals the configured bank sender,
// case-insensitively.
func SenderMatches(fromEmail, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(fromEmail), strings.TrimSpace(expected))
}
