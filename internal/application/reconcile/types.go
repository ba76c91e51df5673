package reconcile

import (
	"log/slog"
	"time"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/mail"
	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// BotActor is the audit identity the engine writes to marked_paid_by
const BotActor = "gmail-bot@system"

// DuplicateWindow is how far back a (sender, amount, from) tuple suppresses
// reprocessing. Older MATCHED rows do not block a new match: a legitimate
// re-payment months later is allowed.
const DuplicateWindow = 48 * time.Hour

// cleanupEvery controls how often the tick-end duplicate NO_MATCH cleanup runs
const cleanupEvery = 10

// Gateway is the engine's view of the IMAP session. One instance per tick.
type Gateway interface {
	Connect() error
	FetchNotifications() ([]*mail.Message, error)
	Archive(uid uint32, folder string) error
	Expunge() error
	Logout() error
}

// GatewayFactory builds a fresh gateway for one tick from that tick's settings
type GatewayFactory func(cfg mail.Config) Gateway

// Summary reports what one tick did
type Summary struct {
	Fetched int
	Matched int
	NoMatch int
	Skipped int
	Errored int
}

// Engine is the reconciliation orchestrator. It owns no connections;
// storage, mail and notification are injected so every step is testable.
type Engine struct {
	store    storage.Repository
	gateways GatewayFactory
	notifier notify.Hook
	logger   *slog.Logger
	clock    func() time.Time
	dispatch func(func())

	ticks int
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock injects a deterministic clock for tests
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSyncDispatch runs downstream notifications inline instead of on a
// goroutine, so tests can assert on them
func WithSyncDispatch() Option {
	return func(e *Engine) { e.dispatch = func(fn func()) { fn() } }
}

// NewEngine creates a reconciliation engine
func NewEngine(store storage.Repository, gateways GatewayFactory, notifier notify.Hook, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:    store,
		gateways: gateways,
		notifier: notifier,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		dispatch: func(fn func()) { go fn() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
