package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_mutations_total",
	Help: "Ledger quantity mutations, by kind",
}, []string{"kind"})

// Ledger owns the on-hand quantity per item and the SKU indices. An item
// absent from the quantity map does not exist system-wide, whatever the
// indices say; items at zero stock stay in the map.
//
// Every mutation emits exactly one audit entry. Entries are emitted
// after the locked section is released because the audit manager's
// threshold listener re-enters the ledger.
type Ledger struct {
	mu         sync.RWMutex
	catalog    *catalog.Catalog
	logs       *auditlog.Manager
	quantities map[string]int
	skuIndex   map[catalog.Platform]map[string]string
}

// NewLedger creates a ledger over the given catalog and registers it
// with the audit manager as both threshold listener and revert applier.
func NewLedger(cat *catalog.Catalog, logs *auditlog.Manager) *Ledger {
	l := &Ledger{
		catalog:    cat,
		logs:       logs,
		quantities: make(map[string]int),
		skuIndex:   make(map[catalog.Platform]map[string]string),
	}
	for _, p := range catalog.Platforms() {
		l.skuIndex[p] = make(map[string]string)
	}
	logs.Subscribe(l)
	logs.SetApplier(l)
	return l
}

// CreateItemInput carries everything needed to register a new item.
type CreateItemInput struct {
	Serial          string
	Name            string
	Icon            string
	LowStockTrigger int
	SKUs            map[catalog.Platform]string
	ComposedOf      []catalog.ItemPacket
	InitialQuantity int
}

// CreateItem registers a new item across the catalog and all indices and
// emits a creation entry. Calling it again with an existing serial never
// creates a duplicate: the initial quantity is added to the existing
// item instead.
func (l *Ledger) CreateItem(in CreateItemInput) (*catalog.Item, bool) {
	l.mu.Lock()
	if _, known := l.quantities[in.Serial]; known {
		l.mu.Unlock()
		item, _ := l.catalog.Get(in.Serial)
		l.AddItemAmount(in.Serial, in.InitialQuantity)
		return item, false
	}

	item := &catalog.Item{
		Serial:          in.Serial,
		Name:            in.Name,
		Icon:            in.Icon,
		LowStockTrigger: in.LowStockTrigger,
		SKUs:            in.SKUs,
	}
	l.catalog.Register(item, in.ComposedOf)

	qty := max(in.InitialQuantity, 0)
	l.quantities[in.Serial] = qty
	for platform, sku := range in.SKUs {
		if sku != "" {
			l.skuIndex[platform][sku] = in.Serial
		}
	}
	l.mu.Unlock()

	mutationsTotal.WithLabelValues("create").Inc()
	l.logs.Create(auditlog.TypeItemCreated, qty,
		fmt.Sprintf("created %q with %d on hand", in.Name, qty), in.Serial)
	return item, true
}

// RemoveItem destroys an item: composition edges are severed in both
// directions, every index entry is dropped, and the item's whole log
// history is purged. One removal entry remains for the audit trail; it
// carries the serial in its message only, so nothing indexed references
// the dead serial anymore.
func (l *Ledger) RemoveItem(serial string) bool {
	l.mu.Lock()
	if _, known := l.quantities[serial]; !known {
		l.mu.Unlock()
		return false
	}
	item, _ := l.catalog.Get(serial)
	l.catalog.Remove(serial)
	delete(l.quantities, serial)
	if item != nil {
		for platform, sku := range item.SKUs {
			if l.skuIndex[platform][sku] == serial {
				delete(l.skuIndex[platform], sku)
			}
		}
	}
	l.mu.Unlock()

	l.logs.PurgeSerial(serial)
	name := serial
	if item != nil {
		name = item.Name
	}
	mutationsTotal.WithLabelValues("remove").Inc()
	l.logs.Create(auditlog.TypeItemRemoved, 0,
		fmt.Sprintf("removed item %s (%q)", serial, name), "")
	return true
}

// AddItemAmount increases stock. Unknown serials and non-positive
// amounts are silent no-ops; otherwise exactly one entry is emitted.
func (l *Ledger) AddItemAmount(serial string, qty int) {
	if qty <= 0 {
		return
	}
	l.mu.Lock()
	q, known := l.quantities[serial]
	if !known {
		l.mu.Unlock()
		return
	}
	now := q + qty
	l.quantities[serial] = now
	l.mu.Unlock()

	mutationsTotal.WithLabelValues("add").Inc()
	l.logs.Create(auditlog.TypeItemAdded, qty,
		fmt.Sprintf("added %d, %d on hand", qty, now), serial)
}

// DecreaseItemAmount lowers stock, clamping at zero. Unknown serials and
// non-positive amounts are silent no-ops; otherwise exactly one entry is
// emitted carrying the applied (possibly clamped) delta.
func (l *Ledger) DecreaseItemAmount(serial string, qty int) {
	if qty <= 0 {
		return
	}
	l.mu.Lock()
	q, known := l.quantities[serial]
	if !known {
		l.mu.Unlock()
		return
	}
	applied := min(qty, q)
	now := q - applied
	l.quantities[serial] = now
	l.mu.Unlock()

	mutationsTotal.WithLabelValues("decrease").Inc()
	l.logs.Create(auditlog.TypeItemSold, -applied,
		fmt.Sprintf("removed %d of %d requested, %d on hand", applied, qty, now), serial)
}

// SetQuantity overwrites the on-hand quantity. Negative values are
// rejected as a no-op.
func (l *Ledger) SetQuantity(serial string, qty int) {
	if qty < 0 {
		return
	}
	l.mu.Lock()
	if _, known := l.quantities[serial]; !known {
		l.mu.Unlock()
		return
	}
	l.quantities[serial] = qty
	l.mu.Unlock()

	mutationsTotal.WithLabelValues("set").Inc()
	l.logs.Create(auditlog.TypeItemUpdated, qty,
		fmt.Sprintf("quantity set to %d", qty), serial)
}

// SetComposition replaces an item's component list. Composition is not
// a stock movement, so no quantity entry is emitted.
func (l *Ledger) SetComposition(serial string, composedOf []catalog.ItemPacket) bool {
	l.mu.Lock()
	if _, known := l.quantities[serial]; !known {
		l.mu.Unlock()
		return false
	}
	ok := l.catalog.SetComposition(serial, composedOf)
	l.mu.Unlock()
	return ok
}

// ProcessItemPacket routes a signed movement through add or decrease.
// Zero quantity is a no-op.
func (l *Ledger) ProcessItemPacket(p catalog.ItemPacket) {
	switch {
	case p.Quantity > 0:
		l.AddItemAmount(p.Serial, p.Quantity)
	case p.Quantity < 0:
		l.DecreaseItemAmount(p.Serial, -p.Quantity)
	}
}

// ProcessItemPacketList applies a batch in list order. A packet that
// cannot apply (unknown serial) never blocks the rest.
func (l *Ledger) ProcessItemPacketList(packets []catalog.ItemPacket) {
	for _, p := range packets {
		l.ProcessItemPacket(p)
	}
}

// GetQuantity returns the on-hand quantity, zero for unknown serials.
func (l *Ledger) GetQuantity(serial string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quantities[serial]
}

// HasItem reports whether the serial exists in the ledger.
func (l *Ledger) HasItem(serial string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, known := l.quantities[serial]
	return known
}

// ItemBySerial returns the catalog definition for a ledger item.
func (l *Ledger) ItemBySerial(serial string) (*catalog.Item, bool) {
	l.mu.RLock()
	_, known := l.quantities[serial]
	l.mu.RUnlock()
	if !known {
		return nil, false
	}
	return l.catalog.Get(serial)
}

// ItemBySKU resolves an item through one of the marketplace SKU indices.
func (l *Ledger) ItemBySKU(platform catalog.Platform, sku string) (*catalog.Item, bool) {
	l.mu.RLock()
	serial, ok := l.skuIndex[platform][sku]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return l.catalog.Get(serial)
}

// ApplyDelta adjusts stock without emitting an entry, clamping at zero.
// Only the audit manager's revert path and startup replay use it.
func (l *Ledger) ApplyDelta(serial string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, known := l.quantities[serial]
	if !known {
		return
	}
	l.quantities[serial] = max(q+delta, 0)
}

// HandleQuantityChange implements auditlog.Listener.
func (l *Ledger) HandleQuantityChange() error {
	return l.CheckLowAndOutOfStock()
}

// CheckLowAndOutOfStock reconciles the open stock alerts for every item
// with a non-zero trigger: at zero stock exactly one out-of-stock entry
// is kept open, within the trigger exactly one low-stock entry, above it
// neither. Running it twice without an intervening mutation changes
// nothing, and items removed mid-iteration are skipped. The exclusive
// section spans the whole read-modify-write.
func (l *Ledger) CheckLowAndOutOfStock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	serials := make([]string, 0, len(l.quantities))
	for s := range l.quantities {
		serials = append(serials, s)
	}
	sort.Strings(serials)

	for _, serial := range serials {
		item, ok := l.catalog.Get(serial)
		if !ok {
			continue
		}
		trigger := item.LowStockTrigger
		if trigger <= 0 {
			continue
		}
		qty := l.quantities[serial]
		low := l.logs.OpenAlert(serial, auditlog.TypeLowStock)
		out := l.logs.OpenAlert(serial, auditlog.TypeOutOfStock)

		switch {
		case qty == 0:
			msg := fmt.Sprintf("%q is out of stock", item.Name)
			if out == nil {
				l.logs.Create(auditlog.TypeOutOfStock, 0, msg, serial)
			} else {
				l.logs.UpdateMessage(out, msg)
			}
			if low != nil {
				l.logs.Resolve(low)
			}
		case qty <= trigger:
			msg := fmt.Sprintf("%q is low on stock: %d left, trigger %d", item.Name, qty, trigger)
			if low == nil {
				l.logs.Create(auditlog.TypeLowStock, 0, msg, serial)
			} else {
				l.logs.UpdateMessage(low, msg)
			}
			if out != nil {
				l.logs.Resolve(out)
			}
		default:
			if low != nil {
				l.logs.Resolve(low)
			}
			if out != nil {
				l.logs.Resolve(out)
			}
		}
	}
	return nil
}

// ItemView is a read-only projection of an item with its stock and
// composition, for callers outside the core.
type ItemView struct {
	Serial          string                      `json:"serial"`
	Name            string                      `json:"name"`
	Icon            string                      `json:"icon,omitempty"`
	LowStockTrigger int                         `json:"low_stock_trigger"`
	SKUs            map[catalog.Platform]string `json:"skus,omitempty"`
	Quantity        int                         `json:"quantity"`
	ComposedOf      []catalog.ItemPacket        `json:"composed_of,omitempty"`
	ComposesInto    []catalog.ItemPacket        `json:"composes_into,omitempty"`
}

// View projects one item.
func (l *Ledger) View(serial string) (ItemView, bool) {
	l.mu.RLock()
	qty, known := l.quantities[serial]
	l.mu.RUnlock()
	if !known {
		return ItemView{}, false
	}
	item, ok := l.catalog.Get(serial)
	if !ok {
		return ItemView{}, false
	}
	return ItemView{
		Serial:          item.Serial,
		Name:            item.Name,
		Icon:            item.Icon,
		LowStockTrigger: item.LowStockTrigger,
		SKUs:            item.SKUs,
		Quantity:        qty,
		ComposedOf:      l.catalog.ComposedOf(serial),
		ComposesInto:    l.catalog.ComposesInto(serial),
	}, true
}

// Views projects every item, sorted by serial.
func (l *Ledger) Views() []ItemView {
	var out []ItemView
	for _, item := range l.catalog.Items() {
		if v, ok := l.View(item.Serial); ok {
			out = append(out, v)
		}
	}
	return out
}

// RestoreItem re-registers a persisted item without emitting entries.
// Quantities are rebuilt separately by ReplayEntries.
func (l *Ledger) RestoreItem(item *catalog.Item, composedOf []catalog.ItemPacket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.catalog.Register(item, composedOf) {
		return
	}
	l.quantities[item.Serial] = 0
	for platform, sku := range item.SKUs {
		if sku != "" {
			l.skuIndex[platform][sku] = item.Serial
		}
	}
}

// ReplayEntries rebuilds quantities by replaying persisted entries in
// chronological order. Reverted, solved and suppressed entries are
// skipped, as are reverter entries themselves: a revert pair nets to
// nothing, which replay achieves by dropping both sides.
func (l *Ledger) ReplayEntries(entries []*auditlog.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if e.Reverted || e.Solved || e.Suppressed {
			continue
		}
		if e.Type == auditlog.TypeLogReverted || !e.Type.AffectsQuantity() {
			continue
		}
		if _, known := l.quantities[e.ItemSerial]; !known {
			continue
		}
		if e.Type == auditlog.TypeItemUpdated {
			l.quantities[e.ItemSerial] = max(e.Amount, 0)
		} else {
			l.quantities[e.ItemSerial] = max(l.quantities[e.ItemSerial]+e.Amount, 0)
		}
	}
}
