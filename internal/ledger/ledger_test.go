package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
)

func newTestLedger() (*Ledger, *auditlog.Manager) {
	logs := auditlog.NewManager(nil)
	return NewLedger(catalog.New(), logs), logs
}

func entriesOfType(logs *auditlog.Manager, t auditlog.Type) []*auditlog.Entry {
	var out []*auditlog.Entry
	for _, e := range logs.Entries() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateItemRegistersAndLogs(t *testing.T) {
	l, logs := newTestLedger()

	item, created := l.CreateItem(CreateItemInput{
		Serial:          "X",
		Name:            "Widget",
		InitialQuantity: 5,
		SKUs:            map[catalog.Platform]string{catalog.PlatformEbay: "EB-X"},
	})

	require.True(t, created)
	require.NotNil(t, item)
	assert.Equal(t, 5, l.GetQuantity("X"))
	assert.True(t, l.HasItem("X"))

	got, ok := l.ItemBySKU(catalog.PlatformEbay, "EB-X")
	require.True(t, ok)
	assert.Equal(t, "X", got.Serial)

	require.Len(t, entriesOfType(logs, auditlog.TypeItemCreated), 1)
}

func TestCreateItemIsIdempotentOnSerial(t *testing.T) {
	l, logs := newTestLedger()

	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 5})
	item, created := l.CreateItem(CreateItemInput{Serial: "X", Name: "Other", InitialQuantity: 3})

	assert.False(t, created)
	assert.Equal(t, "Widget", item.Name, "existing definition wins")
	assert.Equal(t, 8, l.GetQuantity("X"), "duplicate create folds into an add")
	assert.Len(t, entriesOfType(logs, auditlog.TypeItemCreated), 1)
	assert.Len(t, entriesOfType(logs, auditlog.TypeItemAdded), 1)
}

func TestCreateItemNegativeInitialQuantityClampsToZero(t *testing.T) {
	l, _ := newTestLedger()

	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: -4})
	assert.Equal(t, 0, l.GetQuantity("X"))
}

func TestEveryMutationEmitsExactlyOneEntry(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 5})

	before := len(logs.Entries())
	l.AddItemAmount("X", 2)
	assert.Len(t, logs.Entries(), before+1)

	before = len(logs.Entries())
	l.DecreaseItemAmount("X", 3)
	assert.Len(t, logs.Entries(), before+1)

	before = len(logs.Entries())
	l.SetQuantity("X", 10)
	assert.Len(t, logs.Entries(), before+1)
}

func TestDecreaseClampsAtZero(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 3})

	l.DecreaseItemAmount("X", 10)

	assert.Equal(t, 0, l.GetQuantity("X"))
	sold := entriesOfType(logs, auditlog.TypeItemSold)
	require.Len(t, sold, 1)
	assert.Equal(t, -3, sold[0].Amount, "entry carries the applied delta, not the requested one")
}

func TestSilentNoOps(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 5})
	before := len(logs.Entries())

	l.AddItemAmount("X", 0)
	l.AddItemAmount("X", -1)
	l.DecreaseItemAmount("X", 0)
	l.AddItemAmount("ghost", 3)
	l.DecreaseItemAmount("ghost", 3)
	l.SetQuantity("X", -1)
	l.SetQuantity("ghost", 4)

	assert.Equal(t, 5, l.GetQuantity("X"))
	assert.Equal(t, 0, l.GetQuantity("ghost"))
	assert.Len(t, logs.Entries(), before)
}

func TestProcessItemPacketRoutesBySign(t *testing.T) {
	l, _ := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 5})

	l.ProcessItemPacketList([]catalog.ItemPacket{
		{Serial: "X", Quantity: 3},
		{Serial: "X", Quantity: -2},
		{Serial: "X", Quantity: 0},
		{Serial: "ghost", Quantity: 4},
	})

	assert.Equal(t, 6, l.GetQuantity("X"))
}

func TestRemoveItemPurgesHistoryAndIndices(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{
		Serial: "Y", Name: "Component", InitialQuantity: 4,
		SKUs: map[catalog.Platform]string{catalog.PlatformEtsy: "ET-Y"},
	})
	l.CreateItem(CreateItemInput{
		Serial: "X", Name: "Bundle", InitialQuantity: 1,
		ComposedOf: []catalog.ItemPacket{{Serial: "Y", Quantity: 2}},
	})

	require.True(t, l.RemoveItem("Y"))

	assert.False(t, l.HasItem("Y"))
	_, ok := l.ItemBySKU(catalog.PlatformEtsy, "ET-Y")
	assert.False(t, ok)

	view, ok := l.View("X")
	require.True(t, ok)
	assert.Empty(t, view.ComposedOf, "composition edges severed")

	removed := entriesOfType(logs, auditlog.TypeItemRemoved)
	require.Len(t, removed, 1)
	assert.Empty(t, removed[0].ItemSerial, "removal entry does not reference the dead serial")
	assert.Empty(t, logs.BySerial("Y"))
}

func TestSetCompositionRewiresBreakdowns(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "Y", Name: "Component", InitialQuantity: 0})
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Bundle", InitialQuantity: 2})

	assert.False(t, l.IsItemInStockRecursive("Y", 1))

	before := len(logs.Entries())
	require.True(t, l.SetComposition("X", []catalog.ItemPacket{{Serial: "Y", Quantity: 2}}))
	assert.Len(t, logs.Entries(), before, "composition change is not a stock movement")

	assert.True(t, l.IsItemInStockRecursive("Y", 4))
	assert.False(t, l.SetComposition("ghost", nil))
}

func TestRemoveUnknownItem(t *testing.T) {
	l, _ := newTestLedger()
	assert.False(t, l.RemoveItem("ghost"))
}

func TestThresholdCheckLifecycle(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", LowStockTrigger: 2, InitialQuantity: 5})

	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeLowStock))
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeOutOfStock))

	// 5 -> 2: inside the trigger window
	l.DecreaseItemAmount("X", 3)
	assert.NotNil(t, logs.OpenAlert("X", auditlog.TypeLowStock))
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeOutOfStock))

	// 2 -> 0: out of stock replaces low stock
	l.DecreaseItemAmount("X", 2)
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeLowStock))
	assert.NotNil(t, logs.OpenAlert("X", auditlog.TypeOutOfStock))

	// 0 -> 1: back to low stock
	l.AddItemAmount("X", 1)
	assert.NotNil(t, logs.OpenAlert("X", auditlog.TypeLowStock))
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeOutOfStock))

	// 1 -> 6: healthy again
	l.AddItemAmount("X", 5)
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeLowStock))
	assert.Nil(t, logs.OpenAlert("X", auditlog.TypeOutOfStock))
}

func TestThresholdCheckIsIdempotent(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", LowStockTrigger: 2, InitialQuantity: 1})

	before := len(logs.Entries())
	require.NoError(t, l.CheckLowAndOutOfStock())
	require.NoError(t, l.CheckLowAndOutOfStock())
	assert.Len(t, logs.Entries(), before)

	assert.Len(t, entriesOfType(logs, auditlog.TypeLowStock), 1)
}

func TestZeroTriggerNeverAlerts(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 1})

	l.DecreaseItemAmount("X", 1)

	assert.Empty(t, entriesOfType(logs, auditlog.TypeLowStock))
	assert.Empty(t, entriesOfType(logs, auditlog.TypeOutOfStock))
}

func TestRevertRestoresQuantity(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", InitialQuantity: 5})

	l.DecreaseItemAmount("X", 3)
	require.Equal(t, 2, l.GetQuantity("X"))

	sold := entriesOfType(logs, auditlog.TypeItemSold)
	require.Len(t, sold, 1)
	rev := logs.Revert(sold[0])
	require.NotNil(t, rev)

	assert.Equal(t, 5, l.GetQuantity("X"))
	assert.Equal(t, 3, rev.Amount)
}

func TestReplayRebuildsQuantities(t *testing.T) {
	l, logs := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "X", Name: "Widget", LowStockTrigger: 2, InitialQuantity: 5})
	l.CreateItem(CreateItemInput{Serial: "Y", Name: "Other", InitialQuantity: 1})

	l.AddItemAmount("X", 4)
	l.DecreaseItemAmount("X", 2)
	l.SetQuantity("Y", 7)

	added := entriesOfType(logs, auditlog.TypeItemAdded)
	require.Len(t, added, 1)
	require.NotNil(t, logs.Revert(added[0]))

	wantX := l.GetQuantity("X")
	wantY := l.GetQuantity("Y")

	fresh, _ := newTestLedger()
	fresh.RestoreItem(&catalog.Item{Serial: "X", Name: "Widget", LowStockTrigger: 2}, nil)
	fresh.RestoreItem(&catalog.Item{Serial: "Y", Name: "Other"}, nil)
	fresh.ReplayEntries(logs.Entries())

	assert.Equal(t, wantX, fresh.GetQuantity("X"), "revert pair nets to zero on replay")
	assert.Equal(t, wantY, fresh.GetQuantity("Y"), "set is replayed as an absolute quantity")
}

func TestReplaySkipsRevertedSolvedAndUnknown(t *testing.T) {
	l, _ := newTestLedger()
	l.RestoreItem(&catalog.Item{Serial: "X", Name: "Widget"}, nil)

	l.ReplayEntries([]*auditlog.Entry{
		{ID: 1, Type: auditlog.TypeItemCreated, Amount: 5, ItemSerial: "X"},
		{ID: 2, Type: auditlog.TypeItemSold, Amount: -2, ItemSerial: "X", Reverted: true},
		{ID: 3, Type: auditlog.TypeLogReverted, Amount: 2, ItemSerial: "X", RevertedLogID: 2},
		{ID: 4, Type: auditlog.TypeItemAdded, Amount: 1, ItemSerial: "X", Suppressed: true},
		{ID: 5, Type: auditlog.TypeItemAdded, Amount: 9, ItemSerial: "ghost"},
		{ID: 6, Type: auditlog.TypeItemSold, Amount: -100, ItemSerial: "X"},
	})

	assert.Equal(t, 0, l.GetQuantity("X"), "replay clamps at zero")
	assert.False(t, l.HasItem("ghost"))
}

func TestViewProjection(t *testing.T) {
	l, _ := newTestLedger()
	l.CreateItem(CreateItemInput{Serial: "Y", Name: "Component", InitialQuantity: 4})
	l.CreateItem(CreateItemInput{
		Serial: "X", Name: "Bundle", InitialQuantity: 1,
		ComposedOf: []catalog.ItemPacket{{Serial: "Y", Quantity: 2}},
	})

	view, ok := l.View("Y")
	require.True(t, ok)
	assert.Equal(t, 4, view.Quantity)
	assert.Equal(t, []catalog.ItemPacket{{Serial: "X", Quantity: 2}}, view.ComposesInto)

	views := l.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "X", views[0].Serial)

	_, ok = l.View("ghost")
	assert.False(t, ok)
}
