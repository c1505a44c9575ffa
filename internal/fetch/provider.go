package fetch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/orders"
)

// Seller fetches recent orders from one marketplace. Implementations
// wrap the real marketplace APIs; the orchestrator only needs the fetch
// call and a busy flag it can poll before launching a run.
type Seller interface {
	Platform() catalog.Platform
	FetchOrders(ctx context.Context, since time.Time) ([]orders.Order, error)
	Busy() bool
}

// CredentialStore gates whether a platform is attempted at all.
type CredentialStore interface {
	HasValidToken(p catalog.Platform) bool
}

// StubSeller is a placeholder provider for platforms whose real client
// is not wired up. It reports no new orders.
type StubSeller struct {
	platform catalog.Platform
	busy     atomic.Bool
}

// NewStubSeller creates a stub provider for the given platform.
func NewStubSeller(p catalog.Platform) *StubSeller {
	return &StubSeller{platform: p}
}

func (s *StubSeller) Platform() catalog.Platform { return s.platform }

func (s *StubSeller) Busy() bool { return s.busy.Load() }

func (s *StubSeller) FetchOrders(ctx context.Context, since time.Time) ([]orders.Order, error) {
	s.busy.Store(true)
	defer s.busy.Store(false)
	return nil, nil
}
