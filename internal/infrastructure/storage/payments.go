package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const notificationSelect = `
	SELECT id, from_email, subject, sender_name, amount, email_received_at,
	       observed_at, result, matched_passport_id, matched_name,
	       matched_amount, name_score, note
	FROM payment_notifications
`

// FindRecentDuplicate returns the most recent notification for the
// (sender_name, amount, from_email) tuple observed after cutoff, or nil.
// The caller supplies the cutoff so the window follows its clock.
func (s *Storage) FindRecentDuplicate(senderName string, amount decimal.Decimal, fromEmail string, cutoff time.Time) (*PaymentNotification, error) {
	row := s.db.QueryRow(notificationSelect+`
		WHERE sender_name = ? AND amount = ? AND from_email = ? AND observed_at > ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, senderName, amount.StringFixed(2), fromEmail, cutoff)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// LatestNotificationByTuple returns the most recent row for the tuple
// regardless of age, or nil
func (s *Storage) LatestNotificationByTuple(senderName string, amount decimal.Decimal, fromEmail string) (*PaymentNotification, error) {
	row := s.db.QueryRow(notificationSelect+`
		WHERE sender_name = ? AND amount = ? AND from_email = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, senderName, amount.StringFixed(2), fromEmail)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// InsertNotification appends a new row and sets n.ID
func (s *Storage) InsertNotification(n *PaymentNotification) error {
	if n.ObservedAt.IsZero() {
		n.ObservedAt = time.Now().UTC()
	}

	var matchedAmount interface{}
	if n.MatchedAmount != nil {
		matchedAmount = n.MatchedAmount.StringFixed(2)
	}

	res, err := s.db.Exec(`
		INSERT INTO payment_notifications
		(from_email, subject, sender_name, amount, email_received_at, observed_at,
		 result, matched_passport_id, matched_name, matched_amount, name_score, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.FromEmail,
		n.Subject,
		n.SenderName,
		n.Amount.StringFixed(2),
		n.EmailReceivedAt,
		n.ObservedAt,
		string(n.Result),
		n.MatchedPassportID,
		n.MatchedName,
		matchedAmount,
		n.NameScore,
		n.Note,
	)
	if err != nil {
		return err
	}

	n.ID, err = res.LastInsertId()
	return err
}

// UpdateNoMatchNote refreshes the note and observed_at of an existing
// NO_MATCH row after a retried tick still found no match
func (s *Storage) UpdateNoMatchNote(id int64, note string, observedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE payment_notifications SET note = ?, observed_at = ?
		WHERE id = ? AND result = 'NO_MATCH'
	`, note, observedAt, id)
	return err
}

// ApplyMatch commits the passport state transition and the MATCHED payment
// log row in a single transaction. The passport must still be unpaid; the
// whole transaction rolls back otherwise.
func (s *Storage) ApplyMatch(p ApplyMatchParams) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE passports SET paid = 1, paid_at = ?, marked_paid_by = ?
		WHERE id = ? AND paid = 0
	`, p.PaidAt, p.Actor, p.PassportID)
	if err != nil {
		return fmt.Errorf("failed to mark passport paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("passport %d is not unpaid", p.PassportID)
	}

	n := p.Notification
	if p.ExistingID != nil {
		// Promote the existing NO_MATCH row instead of inserting a duplicate
		_, err = tx.Exec(`
			UPDATE payment_notifications
			SET result = 'MATCHED', matched_passport_id = ?, matched_name = ?,
			    matched_amount = ?, name_score = ?, note = ?, observed_at = ?
			WHERE id = ? AND result = 'NO_MATCH'
		`, p.PassportID, p.MatchedName, p.MatchedAmount.StringFixed(2),
			p.Score, p.Note, n.ObservedAt, *p.ExistingID)
		if err != nil {
			return fmt.Errorf("failed to promote payment log row %d: %w", *p.ExistingID, err)
		}
	} else {
		_, err = tx.Exec(`
			INSERT INTO payment_notifications
			(from_email, subject, sender_name, amount, email_received_at, observed_at,
			 result, matched_passport_id, matched_name, matched_amount, name_score, note)
			VALUES (?, ?, ?, ?, ?, ?, 'MATCHED', ?, ?, ?, ?, ?)
		`, n.FromEmail, n.Subject, n.SenderName, n.Amount.StringFixed(2),
			n.EmailReceivedAt, n.ObservedAt, p.PassportID, p.MatchedName,
			p.MatchedAmount.StringFixed(2), p.Score, p.Note)
		if err != nil {
			return fmt.Errorf("failed to insert payment log row: %w", err)
		}
	}

	return tx.Commit()
}

// MarkManualProcessed is the terminal transition used by manual archive
func (s *Storage) MarkManualProcessed(id int64, note string, observedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE payment_notifications SET result = 'MANUAL_PROCESSED', note = ?, observed_at = ?
		WHERE id = ? AND result != 'MANUAL_PROCESSED'
	`, note, observedAt, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payment notification %d not found or already manual-processed", id)
	}
	return nil
}

// CleanupDuplicateNoMatch deletes NO_MATCH rows that are not the latest per
// (sender_name, amount, from_email) and returns how many went away
func (s *Storage) CleanupDuplicateNoMatch() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM payment_notifications
		WHERE result = 'NO_MATCH' AND id NOT IN (
			SELECT MAX(id) FROM payment_notifications
			WHERE result = 'NO_MATCH'
			GROUP BY sender_name, amount, from_email
		)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListNotifications returns payment log rows, newest first
func (s *Storage) ListNotifications(filters NotificationFilters) ([]*PaymentNotification, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	query := notificationSelect
	args := []interface{}{}
	if filters.Result != "" {
		query += ` WHERE result = ?`
		args = append(args, string(filters.Result))
	}
	query += ` ORDER BY observed_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*PaymentNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row scanner) (*PaymentNotification, error) {
	n := &PaymentNotification{}
	var amount string
	var emailReceivedAt sql.NullTime
	var result string
	var matchedPassportID sql.NullInt64
	var matchedAmount sql.NullString

	err := row.Scan(
		&n.ID, &n.FromEmail, &n.Subject, &n.SenderName, &amount, &emailReceivedAt,
		&n.ObservedAt, &result, &matchedPassportID, &n.MatchedName,
		&matchedAmount, &n.NameScore, &n.Note,
	)
	if err != nil {
		return nil, err
	}

	n.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on notification %d: %w", amount, n.ID, err)
	}
	if emailReceivedAt.Valid {
		n.EmailReceivedAt = emailReceivedAt.Time.UTC()
	}
	n.ObservedAt = n.ObservedAt.UTC()
	n.Result = Result(result)
	if matchedPassportID.Valid {
		id := matchedPassportID.Int64
		n.MatchedPassportID = &id
	}
	if matchedAmount.Valid {
		d, err := decimal.NewFromString(matchedAmount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid matched_amount %q on notification %d: %w", matchedAmount.String, n.ID, err)
		}
		n.MatchedAmount = &d
	}

	return n, nil
}
