// The long-running reconciliation service: background IMAP polling, the
// late-payment reminder schedule, and the admin HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/mail"
	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/api"
	"github.com/lpgagnon/passtrack-backend/internal/application/reconcile"
	"github.com/lpgagnon/passtrack-backend/internal/application/reminder"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/config"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/logging"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/settings"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

func main() {
	configFile := flag.String("config", "", "Configuration file path")
	flag.Parse()

	cfg := loadConfig(*configFile)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "server")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// SMTP shares the MAIL_USERNAME/MAIL_PASSWORD credentials with IMAP
	creds, err := settings.Load(store)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	broker := api.NewBroker(logging.NewLoggerWithSystem(cfg.Observability.Logging, "sse"))
	mailer := notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port,
		creds.Username, creds.Password, cfg.SMTP.FromAddress, cfg.SMTP.FromName)
	notifier := notify.NewNotifier(mailer, store, broker,
		logging.NewLoggerWithSystem(cfg.Observability.Logging, "notify"))

	gatewayLogger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "imap")
	engine := reconcile.NewEngine(store,
		func(cfg mail.Config) reconcile.Gateway { return mail.NewGateway(cfg, gatewayLogger) },
		notifier,
		logging.NewLoggerWithSystem(cfg.Observability.Logging, "reconcile"))

	driver := reminder.NewDriver(store, notifier,
		logging.NewLoggerWithSystem(cfg.Observability.Logging, "reminder"))

	server := api.NewServer(api.Config{
		Port:           cfg.HTTP.Port,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, store, engine, driver, broker, logging.NewLoggerWithSystem(cfg.Observability.Logging, "api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runReconcileLoop(ctx, engine, cfg.Reconcile.PollIntervalMinutes, logger)
	go runReminderLoop(ctx, driver, cfg.Reconcile.ReminderIntervalMinutes, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// runReconcileLoop polls the inbox on the configured interval, starting
// with an immediate tick
func runReconcileLoop(ctx context.Context, engine *reconcile.Engine, intervalMinutes int, logger *slog.Logger) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		summary, err := engine.ReconcileOnce(ctx)
		if err != nil {
			logger.Error("reconcile tick failed", "error", err)
		} else {
			logger.Info("reconcile tick finished",
				"fetched", summary.Fetched, "matched", summary.Matched,
				"no_match", summary.NoMatch, "skipped", summary.Skipped,
				"errored", summary.Errored)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runReminderLoop sweeps overdue passports on the configured interval
func runReminderLoop(ctx context.Context, driver *reminder.Driver, intervalMinutes int, logger *slog.Logger) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := driver.SendUnpaidReminders(ctx, false); err != nil {
			logger.Error("reminder sweep failed", "error", err)
		}
	}
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
