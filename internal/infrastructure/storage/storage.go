// Package storage provides SQLite persistence for passports, users, the
// payment notification log, reminder tracking and runtime settings.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// GetSetting returns the stored value for key, or "" when unset
func (s *Storage) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces the value for key
func (s *Storage) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// CreateUser inserts a user and sets user.ID
func (s *Storage) CreateUser(user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO users (name, email, phone, email_opt_out, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Name, user.Email, user.Phone, user.EmailOptOut, user.CreatedAt)
	if err != nil {
		return err
	}

	user.ID, err = res.LastInsertId()
	return err
}

// CreateActivity inserts an activity and sets activity.ID
func (s *Storage) CreateActivity(activity *Activity) error {
	res, err := s.db.Exec(`
		INSERT INTO activities (name, archived) VALUES (?, ?)
	`, activity.Name, activity.Archived)
	if err != nil {
		return err
	}

	activity.ID, err = res.LastInsertId()
	return err
}

// CreatePassport inserts a passport and sets passport.ID
func (s *Storage) CreatePassport(passport *Passport) error {
	if passport.CreatedAt.IsZero() {
		passport.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO passports
		(pass_code, user_id, activity_id, sold_amt, uses_remaining, paid, paid_at, marked_paid_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		passport.PassCode,
		passport.UserID,
		passport.ActivityID,
		passport.SoldAmt.StringFixed(2),
		passport.UsesRemaining,
		passport.Paid,
		passport.PaidAt,
		nullIfEmpty(passport.MarkedPaidBy),
		passport.CreatedAt,
	)
	if err != nil {
		return err
	}

	passport.ID, err = res.LastInsertId()
	return err
}

const passportSelect = `
	SELECT p.id, p.pass_code, p.user_id, p.activity_id, p.sold_amt,
	       p.uses_remaining, p.paid, p.paid_at, p.marked_paid_by, p.created_at,
	       u.id, u.name, u.email, u.phone, u.email_opt_out, u.created_at,
	       a.id, a.name, a.archived
	FROM passports p
	JOIN users u ON u.id = p.user_id
	JOIN activities a ON a.id = p.activity_id
`

// GetPassport retrieves a passport by ID with its user and activity joined
func (s *Storage) GetPassport(id int64) (*Passport, error) {
	row := s.db.QueryRow(passportSelect+` WHERE p.id = ?`, id)
	passport, err := scanPassport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return passport, err
}

// UnpaidPassportsByAmount returns unpaid passports whose sold amount equals
// amt to the cent, oldest first. Amounts are stored as fixed two-decimal
// strings, so string equality is exact cent equality; casting to REAL would
// let $50.01 match $50.00 through float rounding.
func (s *Storage) UnpaidPassportsByAmount(amt decimal.Decimal) ([]*Passport, error) {
	rows, err := s.db.Query(passportSelect+`
		WHERE p.paid = 0 AND p.sold_amt = ?
		ORDER BY p.created_at ASC
	`, amt.StringFixed(2))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassports(rows)
}

// UnpaidPassports returns every unpaid passport, oldest first
func (s *Storage) UnpaidPassports() ([]*Passport, error) {
	rows, err := s.db.Query(passportSelect + `
		WHERE p.paid = 0
		ORDER BY p.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassports(rows)
}

// UnpaidPassportsCreatedBefore returns unpaid passports created at or before cutoff
func (s *Storage) UnpaidPassportsCreatedBefore(cutoff time.Time) ([]*Passport, error) {
	rows, err := s.db.Query(passportSelect+`
		WHERE p.paid = 0 AND p.created_at <= ?
		ORDER BY p.created_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassports(rows)
}

// PaidPassportsByAmount returns paid passports at amt, newest paid first
func (s *Storage) PaidPassportsByAmount(amt decimal.Decimal) ([]*Passport, error) {
	rows, err := s.db.Query(passportSelect+`
		WHERE p.paid = 1 AND p.sold_amt = ?
		ORDER BY p.paid_at DESC
	`, amt.StringFixed(2))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassports(rows)
}

// MarkPassportPaid marks a passport paid outside the engine (admin action)
func (s *Storage) MarkPassportPaid(id int64, paidAt time.Time, actor string) error {
	res, err := s.db.Exec(`
		UPDATE passports SET paid = 1, paid_at = ?, marked_paid_by = ?
		WHERE id = ? AND paid = 0
	`, paidAt, actor, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("passport %d not found or already paid", id)
	}
	return nil
}

// RedeemPassport decrements uses_remaining, never below zero
func (s *Storage) RedeemPassport(id int64) error {
	res, err := s.db.Exec(`
		UPDATE passports SET uses_remaining = uses_remaining - 1
		WHERE id = ? AND uses_remaining > 0
	`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("passport %d not found or has no uses remaining", id)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for the shared passport scan
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPassport(row scanner) (*Passport, error) {
	p := &Passport{User: &User{}, Activity: &Activity{}}
	var soldAmt string
	var paidAt sql.NullTime
	var markedPaidBy sql.NullString

	err := row.Scan(
		&p.ID, &p.PassCode, &p.UserID, &p.ActivityID, &soldAmt,
		&p.UsesRemaining, &p.Paid, &paidAt, &markedPaidBy, &p.CreatedAt,
		&p.User.ID, &p.User.Name, &p.User.Email, &p.User.Phone, &p.User.EmailOptOut, &p.User.CreatedAt,
		&p.Activity.ID, &p.Activity.Name, &p.Activity.Archived,
	)
	if err != nil {
		return nil, err
	}

	p.SoldAmt, err = decimal.NewFromString(soldAmt)
	if err != nil {
		return nil, fmt.Errorf("invalid sold_amt %q on passport %d: %w", soldAmt, p.ID, err)
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	if markedPaidBy.Valid {
		p.MarkedPaidBy = markedPaidBy.String
	}
	p.CreatedAt = p.CreatedAt.UTC()

	return p, nil
}

func scanPassports(rows *sql.Rows) ([]*Passport, error) {
	var passports []*Passport
	for rows.Next() {
		p, err := scanPassport(rows)
		if err != nil {
			return nil, err
		}
		passports = append(passports, p)
	}
	return passports, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
