// Package settings loads the runtime tunables the reconciliation engine
// consumes. Values come from the settings table with an environment-variable
// fallback, then the documented defaults. The engine re-loads them at the
// start of every tick so a threshold change takes effect on the next poll
// without a restart.
package settings

import (
	"errors"
	"os"
	"strconv"

	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// Setting keys
const (
	KeyMailUsername    = "MAIL_USERNAME"
	KeyMailPassword    = "MAIL_PASSWORD"
	KeyIMAPServer      = "IMAP_SERVER"
	KeyMailServer      = "MAIL_SERVER"
	KeySubjectPrefix   = "BANK_EMAIL_SUBJECT"
	KeyBankFrom        = "BANK_EMAIL_FROM"
	KeyNameConfidence  = "BANK_EMAIL_NAME_CONFIDANCE"
	KeyProcessedFolder = "GMAIL_LABEL_FOLDER_PROCESSED"
	KeyManualFolder    = "GMAIL_LABEL_FOLDER_MANUAL"
	KeyCallbackDays    = "CALL_BACK_DAYS"
)

// Defaults
const (
	DefaultSubjectPrefix   = "Virement Interac :"
	DefaultBankFrom        = "notify@payments.interac.ca"
	DefaultNameConfidence  = 85
	DefaultProcessedFolder = "PaymentProcessed"
	DefaultManualFolder    = "ManualProcessed"
	DefaultCallbackDays    = 15
	DefaultIMAPServer      = "imap.gmail.com"
)

// ErrMissingCredentials indicates MAIL_USERNAME or MAIL_PASSWORD is unset.
// Fatal for a tick; the scheduler logs it and waits for the next cycle.
var ErrMissingCredentials = errors.New("MAIL_USERNAME or MAIL_PASSWORD is not set")

// Settings is the per-tick snapshot of runtime configuration
type Settings struct {
	IMAPServer      string
	Username        string
	Password        string
	SubjectPrefix   string
	BankFrom        string
	NameConfidence  int
	ProcessedFolder string
	ManualFolder    string
	CallbackDays    int
}

// Load reads all engine settings from the store. Missing credentials are not
// an error here; callers that need IMAP access check RequireCredentials.
func Load(store storage.SettingsRepository) (*Settings, error) {
	s := &Settings{}
	var err error

	if s.Username, err = get(store, KeyMailUsername, ""); err != nil {
		return nil, err
	}
	if s.Password, err = get(store, KeyMailPassword, ""); err != nil {
		return nil, err
	}
	if s.SubjectPrefix, err = get(store, KeySubjectPrefix, DefaultSubjectPrefix); err != nil {
		return nil, err
	}
	if s.BankFrom, err = get(store, KeyBankFrom, DefaultBankFrom); err != nil {
		return nil, err
	}
	if s.ProcessedFolder, err = get(store, KeyProcessedFolder, DefaultProcessedFolder); err != nil {
		return nil, err
	}
	if s.ManualFolder, err = get(store, KeyManualFolder, DefaultManualFolder); err != nil {
		return nil, err
	}

	confidence, err := get(store, KeyNameConfidence, "")
	if err != nil {
		return nil, err
	}
	s.NameConfidence = parseIntOr(confidence, DefaultNameConfidence)

	callback, err := get(store, KeyCallbackDays, "")
	if err != nil {
		return nil, err
	}
	s.CallbackDays = parseIntOr(callback, DefaultCallbackDays)

	// IMAP server fallback chain: IMAP_SERVER, then MAIL_SERVER, then Gmail
	if s.IMAPServer, err = get(store, KeyIMAPServer, ""); err != nil {
		return nil, err
	}
	if s.IMAPServer == "" {
		if s.IMAPServer, err = get(store, KeyMailServer, ""); err != nil {
			return nil, err
		}
	}
	if s.IMAPServer == "" {
		s.IMAPServer = DefaultIMAPServer
	}

	return s, nil
}

// RequireCredentials returns ErrMissingCredentials when the IMAP login is unset
func (s *Settings) RequireCredentials() error {
	if s.Username == "" || s.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// get reads a setting from the store, falling back to the environment
// variable of the same name, then the default
func get(store storage.SettingsRepository, key, fallback string) (string, error) {
	val, err := store.GetSetting(key)
	if err != nil {
		return "", err
	}
	if val != "" {
		return val, nil
	}
	if env := os.Getenv(key); env != "" {
		return env, nil
	}
	return fallback, nil
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
