package app

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	httpDelivery "github.com/tair/stock-ledger/internal/delivery/http"
	"github.com/tair/stock-ledger/internal/fetch"
	"github.com/tair/stock-ledger/internal/ledger"
	"github.com/tair/stock-ledger/internal/orders"
	"github.com/tair/stock-ledger/internal/repository"
	"github.com/tair/stock-ledger/kafka"
	"github.com/tair/stock-ledger/pkg/logger"
)

// App wires the ledger core, the reconciliation engine, the fetch
// orchestrator and their persistence together.
type App struct {
	DB           *gorm.DB
	Store        *repository.TracedStore
	Catalog      *catalog.Catalog
	Logs         *auditlog.Manager
	Ledger       *ledger.Ledger
	Engine       *orders.Engine
	Orchestrator *fetch.Orchestrator
	Handler      *httpDelivery.LedgerHandler
}

func newApp(
	db *gorm.DB,
	store *repository.TracedStore,
	cat *catalog.Catalog,
	logs *auditlog.Manager,
	l *ledger.Ledger,
	engine *orders.Engine,
	orch *fetch.Orchestrator,
	handler *httpDelivery.LedgerHandler,
) *App {
	return &App{
		DB:           db,
		Store:        store,
		Catalog:      cat,
		Logs:         logs,
		Ledger:       l,
		Engine:       engine,
		Orchestrator: orch,
		Handler:      handler,
	}
}

// LoadState migrates the schema and rebuilds the in-memory state from
// the persisted snapshot. Quantities are not stored; they are derived by
// replaying the audit log over the restored items.
func (a *App) LoadState(ctx context.Context) error {
	if err := a.Store.AutoMigrate(); err != nil {
		return err
	}

	snap, err := a.Store.LoadWithContext(ctx)
	if err != nil {
		return err
	}

	for _, stored := range snap.Items {
		a.Ledger.RestoreItem(stored.Item, stored.ComposedOf)
	}
	a.Logs.Restore(snap.Entries)
	a.Ledger.ReplayEntries(snap.Entries)
	a.Engine.RestoreOrders(snap.Orders)
	if !snap.LastFetch.IsZero() {
		a.Orchestrator.RestoreLastFetch(snap.LastFetch)
	}

	logger.Logger.Info().
		Int("items", len(snap.Items)).
		Int("log_entries", len(snap.Entries)).
		Int("orders", len(snap.Orders)).
		Time("last_fetch", snap.LastFetch).
		Msg("State restored from snapshot")
	return nil
}

// AttachPublisher mirrors every new audit entry onto the event bus.
func (a *App) AttachPublisher(pub *kafka.Publisher) {
	a.Logs.AddObserver(&publishingObserver{pub: pub})
}

// publishingObserver forwards audit entries to Kafka. Manager dispatches
// observers on their own goroutine, so the blocking produce is fine here.
type publishingObserver struct {
	pub *kafka.Publisher
}

func (o *publishingObserver) EntryLogged(e auditlog.Entry) {
	event := kafka.LedgerEntryEvent{
		LogID:      e.ID,
		LogType:    string(e.Type),
		Severity:   e.Severity.String(),
		ItemSerial: e.ItemSerial,
		Amount:     e.Amount,
		Message:    e.Message,
		Timestamp:  e.Timestamp,
	}
	if err := o.pub.PublishLedgerEntry(context.Background(), event); err != nil {
		logger.Logger.Error().
			Err(err).
			Int64("log_id", e.ID).
			Msg("Failed to publish ledger entry event")
	}
}

// runSnapshotter persists the order table and the run timestamp after a
// completed fetch run. It implements fetch.Snapshotter.
type runSnapshotter struct {
	store  *repository.TracedStore
	engine *orders.Engine
}

func (s *runSnapshotter) PersistRun(ctx context.Context, completedAt time.Time) error {
	if err := s.store.SaveOrdersWithContext(ctx, s.engine.KnownOrders()); err != nil {
		return err
	}
	return s.store.SetLastFetchWithContext(ctx, completedAt)
}
