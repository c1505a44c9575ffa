package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/orders"
	"github.com/tair/stock-ledger/pkg/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewSqliteConnection(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestSaveAndLoadItemWithComposition(t *testing.T) {
	store := newTestStore(t)

	item := &catalog.Item{
		Serial:          "X",
		Name:            "Bundle",
		Icon:            "box",
		LowStockTrigger: 2,
		SKUs: map[catalog.Platform]string{
			catalog.PlatformEbay: "EB-X",
			catalog.PlatformEtsy: "ET-X",
		},
	}
	require.NoError(t, store.SaveItem(item, []catalog.ItemPacket{{Serial: "Y", Quantity: 2}}))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	got := snap.Items[0]
	assert.Equal(t, "X", got.Item.Serial)
	assert.Equal(t, "Bundle", got.Item.Name)
	assert.Equal(t, 2, got.Item.LowStockTrigger)
	assert.Equal(t, "EB-X", got.Item.SKU(catalog.PlatformEbay))
	assert.Equal(t, "", got.Item.SKU(catalog.PlatformAmazon))
	assert.Equal(t, []catalog.ItemPacket{{Serial: "Y", Quantity: 2}}, got.ComposedOf)
}

func TestSaveItemUpsertsAndReplacesComposition(t *testing.T) {
	store := newTestStore(t)

	item := &catalog.Item{Serial: "X", Name: "First"}
	require.NoError(t, store.SaveItem(item, []catalog.ItemPacket{{Serial: "Y", Quantity: 2}}))

	item.Name = "Second"
	require.NoError(t, store.SaveItem(item, []catalog.ItemPacket{{Serial: "Z", Quantity: 1}}))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Second", snap.Items[0].Item.Name)
	assert.Equal(t, []catalog.ItemPacket{{Serial: "Z", Quantity: 1}}, snap.Items[0].ComposedOf)
}

func TestDeleteItemDropsCompositionRows(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveItem(&catalog.Item{Serial: "Y", Name: "Component"}, nil))
	require.NoError(t, store.SaveItem(&catalog.Item{Serial: "X", Name: "Bundle"},
		[]catalog.ItemPacket{{Serial: "Y", Quantity: 2}}))

	require.NoError(t, store.DeleteItem("Y"))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "X", snap.Items[0].Item.Serial)
	assert.Empty(t, snap.Items[0].ComposedOf, "edges referencing the deleted item are gone")
}

func TestAppendAndLoadEntriesInIDOrder(t *testing.T) {
	store := newTestStore(t)

	// manager-assigned ids, appended out of order
	require.NoError(t, store.AppendEntry(auditlog.Entry{
		ID: 2, Type: auditlog.TypeItemSold, Amount: -1, ItemSerial: "X", Timestamp: time.Now(),
	}))
	require.NoError(t, store.AppendEntry(auditlog.Entry{
		ID: 1, Type: auditlog.TypeItemCreated, Amount: 5, ItemSerial: "X", Timestamp: time.Now(),
	}))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, int64(1), snap.Entries[0].ID)
	assert.Equal(t, int64(2), snap.Entries[1].ID)
	assert.Equal(t, auditlog.SeverityNormal, snap.Entries[0].Severity, "severity re-derived from type")
}

func TestUpdateEntryFlagsAndMessage(t *testing.T) {
	store := newTestStore(t)

	e := auditlog.Entry{ID: 1, Type: auditlog.TypeItemAdded, Amount: 3, ItemSerial: "X"}
	require.NoError(t, store.AppendEntry(e))

	e.Reverted = true
	e.RevertedByLogID = 2
	require.NoError(t, store.UpdateEntryFlags(e))

	e.Message = "rewritten"
	require.NoError(t, store.UpdateEntryMessage(e))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.True(t, snap.Entries[0].Reverted)
	assert.Equal(t, int64(2), snap.Entries[0].RevertedByLogID)
	assert.Equal(t, "rewritten", snap.Entries[0].Message)
}

func TestDeleteEntriesBySerial(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendEntry(auditlog.Entry{ID: 1, Type: auditlog.TypeItemAdded, ItemSerial: "X"}))
	require.NoError(t, store.AppendEntry(auditlog.Entry{ID: 2, Type: auditlog.TypeItemAdded, ItemSerial: "Y"}))

	require.NoError(t, store.DeleteEntriesBySerial("X"))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "Y", snap.Entries[0].ItemSerial)
}

func TestSaveOrdersUpsertsOnPlatformAndID(t *testing.T) {
	store := newTestStore(t)

	first := orders.Order{
		Platform: catalog.PlatformEbay,
		OrderID:  "o1",
		Status:   orders.StatusConfirmed,
		Lines:    []orders.Line{{SKU: "EB-X", Quantity: 2}},
	}
	require.NoError(t, store.SaveOrders([]orders.Order{first}))

	first.Status = orders.StatusShipped
	other := orders.Order{Platform: catalog.PlatformEtsy, OrderID: "o1", Status: orders.StatusConfirmed}
	require.NoError(t, store.SaveOrders([]orders.Order{first, other}))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Orders, 2, "same order id on another platform is a distinct order")

	byPlatform := make(map[catalog.Platform]orders.Order)
	for _, o := range snap.Orders {
		byPlatform[o.Platform] = o
	}
	assert.Equal(t, orders.StatusShipped, byPlatform[catalog.PlatformEbay].Status)
	assert.Equal(t, []orders.Line{{SKU: "EB-X", Quantity: 2}}, byPlatform[catalog.PlatformEbay].Lines)
	assert.Equal(t, orders.StatusConfirmed, byPlatform[catalog.PlatformEtsy].Status)
}

func TestLastFetchRoundTrip(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.True(t, snap.LastFetch.IsZero(), "no state row yet")

	at := time.Now().Add(-time.Hour).Round(time.Millisecond)
	require.NoError(t, store.SetLastFetch(at))
	require.NoError(t, store.SetLastFetch(at.Add(time.Minute)))

	snap, err = store.Load()
	require.NoError(t, err)
	assert.True(t, snap.LastFetch.Equal(at.Add(time.Minute)))
}
