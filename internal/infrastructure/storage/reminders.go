package storage

import (
	"database/sql"
	"time"
)

// LastReminder returns the most recent reminder for a passport, or nil
func (s *Storage) LastReminder(passportID int64) (*ReminderLog, error) {
	r := &ReminderLog{}
	err := s.db.QueryRow(`
		SELECT id, passport_id, sent_at FROM reminder_logs
		WHERE passport_id = ?
		ORDER BY sent_at DESC
		LIMIT 1
	`, passportID).Scan(&r.ID, &r.PassportID, &r.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.SentAt = r.SentAt.UTC()
	return r, nil
}

// LogReminder records a sent reminder
func (s *Storage) LogReminder(passportID int64, sentAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO reminder_logs (passport_id, sent_at) VALUES (?, ?)
	`, passportID, sentAt)
	return err
}

// LogEmail records one outbound email attempt
func (s *Storage) LogEmail(entry *EmailLog) error {
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO email_logs (to_email, subject, pass_code, template, status, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ToEmail, entry.Subject, entry.PassCode, entry.Template, entry.Status, entry.SentAt)
	if err != nil {
		return err
	}

	entry.ID, err = res.LastInsertId()
	return err
}
