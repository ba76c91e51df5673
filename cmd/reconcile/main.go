// One-shot reconciliation tick, intended for cron or manual runs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/mail"
	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/application/reconcile"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/config"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/logging"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "reconcile")

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

	engine := reconcile.NewEngine(store,
		func(cfg mail.Config) reconcile.Gateway { return mail.NewGateway(cfg, logger) },
		notifier, logger,
		// One-shot runs must not exit before notification emails go out
		reconcile.WithSyncDispatch())

	summary, err := engine.ReconcileOnce(context.Background())
	if err != nil {
		logger.Error("reconcile failed", "error", err)
		os.Exit(1)
	}

	logger.Info("reconcile finished",
		"fetched", summary.Fetched, "matched", summary.Matched,
		"no_match", summary.NoMatch, "skipped", summary.Skipped,
		"errored", summary.Errored)
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
