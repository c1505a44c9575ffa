package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/orders"
)

var tracer = otel.Tracer("ledger-repository")

// TracedStore wraps Store with tracing for the snapshot paths that run
// inside an orchestration span.
type TracedStore struct {
	*Store
}

// NewTracedStore creates a store with tracing.
func NewTracedStore(store *Store) *TracedStore {
	return &TracedStore{Store: store}
}

// SaveItemWithContext persists an item under a span.
func (s *TracedStore) SaveItemWithContext(ctx context.Context, item *catalog.Item, composedOf []catalog.ItemPacket) error {
	_, span := tracer.Start(ctx, "repository.SaveItem",
		trace.WithAttributes(attribute.String("item.serial", item.Serial)),
	)
	defer span.End()

	err := s.Store.SaveItem(item, composedOf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// SaveOrdersWithContext persists the order table under a span.
func (s *TracedStore) SaveOrdersWithContext(ctx context.Context, batch []orders.Order) error {
	_, span := tracer.Start(ctx, "repository.SaveOrders")
	defer span.End()
	span.SetAttributes(attribute.Int("orders.count", len(batch)))

	err := s.Store.SaveOrders(batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// SetLastFetchWithContext persists the run timestamp under a span.
func (s *TracedStore) SetLastFetchWithContext(ctx context.Context, t time.Time) error {
	_, span := tracer.Start(ctx, "repository.SetLastFetch")
	defer span.End()

	err := s.Store.SetLastFetch(t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// LoadWithContext reads the full snapshot under a span.
func (s *TracedStore) LoadWithContext(ctx context.Context) (*Snapshot, error) {
	_, span := tracer.Start(ctx, "repository.Load")
	defer span.End()

	snap, err := s.Store.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("items.count", len(snap.Items)),
		attribute.Int("entries.count", len(snap.Entries)),
		attribute.Int("orders.count", len(snap.Orders)),
	)
	return snap, nil
}
