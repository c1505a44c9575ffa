//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/tair/stock-ledger/internal/config"
	httpDelivery "github.com/tair/stock-ledger/internal/delivery/http"
	"github.com/tair/stock-ledger/internal/fetch"
)

// InitializeApp initializes the full application with all dependencies
func InitializeApp(db *gorm.DB, cfg *config.Config, sellers []fetch.Seller) (*App, error) {
	wire.Build(
		StoreSet,
		CoreSet,
		FetchSet,
		httpDelivery.NewLedgerHandler,
		newApp,
	)
	return nil, nil
}
