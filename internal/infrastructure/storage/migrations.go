package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_payment_notifications",
		Up:      migration002AddPaymentNotifications,
	},
	{
		Version: 3,
		Name:    "add_reminder_and_email_logs",
		Up:      migration003AddReminderAndEmailLogs,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue // Already applied
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if needed
func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getAppliedMigrations returns the set of already-applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email_opt_out INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE passports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pass_code TEXT NOT NULL UNIQUE,
			user_id INTEGER NOT NULL REFERENCES users(id),
			activity_id INTEGER NOT NULL REFERENCES activities(id),
			sold_amt TEXT NOT NULL,
			uses_remaining INTEGER NOT NULL DEFAULT 0 CHECK (uses_remaining >= 0),
			paid INTEGER NOT NULL DEFAULT 0,
			paid_at DATETIME,
			marked_paid_by TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX idx_passports_paid ON passports(paid);

		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

func migration002AddPaymentNotifications(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE payment_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_email TEXT NOT NULL,
			subject TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			amount TEXT NOT NULL,
			email_received_at DATETIME,
			observed_at DATETIME NOT NULL,
			result TEXT NOT NULL CHECK (result IN ('MATCHED', 'NO_MATCH', 'MANUAL_PROCESSED')),
			matched_passport_id INTEGER REFERENCES passports(id),
			matched_name TEXT NOT NULL DEFAULT '',
			matched_amount TEXT,
			name_score INTEGER NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX idx_payment_notifications_tuple
			ON payment_notifications(sender_name, amount, from_email, observed_at);
	`)
	return err
}

func migration003AddReminderAndEmailLogs(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE reminder_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			passport_id INTEGER NOT NULL REFERENCES passports(id),
			sent_at DATETIME NOT NULL
		);

		CREATE INDEX idx_reminder_logs_passport ON reminder_logs(passport_id, sent_at);

		CREATE TABLE email_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			to_email TEXT NOT NULL,
			subject TEXT NOT NULL,
			pass_code TEXT NOT NULL DEFAULT '',
			template TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'sent',
			sent_at DATETIME NOT NULL
		);
	`)
	return err
}
