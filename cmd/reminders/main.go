// One-shot late-payment reminder sweep, intended for cron or manual runs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/application/reminder"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/config"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/logging"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		force      = flag.Bool("force", false, "Resend even if reminded within the callback window")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "reminder")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	creds, err := settings.Load(store)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	mailer := notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port,
		creds.Username, creds.Password, cfg.SMTP.FromAddress, cfg.SMTP.FromName)
	notifier := notify.NewNotifier(mailer, store, nil, logger)

	driver := reminder.NewDriver(store, notifier, logger)

	summary, err := driver.SendUnpaidReminders(context.Background(), *force)
	if err != nil {
		logger.Error("reminder sweep failed", "error", err)
		os.Exit(1)
	}

	logger.Info("reminder sweep finished",
		"scanned", summary.Scanned, "sent", summary.Sent,
		"skipped", summary.Skipped, "errored", summary.Errored)
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.LoadOrEnv()
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	return cfg
}
