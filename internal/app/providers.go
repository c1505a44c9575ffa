package app

import (
	"github.com/google/wire"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/config"
	"github.com/tair/stock-ledger/internal/fetch"
	"github.com/tair/stock-ledger/internal/ledger"
	"github.com/tair/stock-ledger/internal/orders"
	"github.com/tair/stock-ledger/internal/repository"
)

// ProvideSink exposes the store as the audit log sink
func ProvideSink(store *repository.Store) auditlog.Sink {
	return store
}

// ProvideCredentialStore gates platform fetches on configured tokens
func ProvideCredentialStore(cfg *config.Config) fetch.CredentialStore {
	return config.NewEnvCredentialStore(cfg)
}

// ProvideSnapshotter persists fetch run results through the traced store
func ProvideSnapshotter(store *repository.TracedStore, engine *orders.Engine) fetch.Snapshotter {
	return &runSnapshotter{store: store, engine: engine}
}

// ProvideOrchestrator builds the fetch orchestrator from config
func ProvideOrchestrator(
	engine *orders.Engine,
	logs *auditlog.Manager,
	creds fetch.CredentialStore,
	sellers []fetch.Seller,
	snapshot fetch.Snapshotter,
	cfg *config.Config,
) *fetch.Orchestrator {
	return fetch.NewOrchestrator(engine, logs, creds, sellers, snapshot, cfg.FetchCooldown, cfg.FetchWaitBound)
}

// Wire sets
var StoreSet = wire.NewSet(
	repository.NewStore,
	repository.NewTracedStore,
	ProvideSink,
)

var CoreSet = wire.NewSet(
	catalog.New,
	auditlog.NewManager,
	ledger.NewLedger,
	orders.NewEngine,
)

var FetchSet = wire.NewSet(
	ProvideCredentialStore,
	ProvideSnapshotter,
	ProvideOrchestrator,
)
