package orders

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/ledger"
	"github.com/tair/stock-ledger/pkg/logger"
)

// lineOutcome ranks how a single order line resolved. Higher values win
// when classifying the order's summary entry.
type lineOutcome int

const (
	outcomeNormal lineOutcome = iota
	outcomeComposition
	outcomeOutOfStock
	outcomeUnregistered
)

// Engine maps marketplace order lifecycle events onto ledger movements
// and audit entries. It keeps the latest known order per (platform,
// order id) and a soft reservation per confirmed-but-unshipped order;
// reservations never touch the ledger, only shipment does.
type Engine struct {
	mu           sync.Mutex
	ledger       *ledger.Ledger
	logs         *auditlog.Manager
	known        map[orderKey]Order
	reservations map[orderKey][]catalog.ItemPacket
}

// NewEngine creates an engine over the given ledger and audit manager.
func NewEngine(l *ledger.Ledger, logs *auditlog.Manager) *Engine {
	return &Engine{
		ledger:       l,
		logs:         logs,
		known:        make(map[orderKey]Order),
		reservations: make(map[orderKey][]catalog.ItemPacket),
	}
}

// Process reconciles a batch of fetched orders. The orchestrator calls
// it once per run, after every platform has settled.
func (e *Engine) Process(batch []Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range batch {
		e.processOne(o)
	}
}

// KnownOrders returns the engine's order table sorted by platform and
// order id.
func (e *Engine) KnownOrders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.known))
	for _, o := range e.known {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Reservation returns the soft hold for an order, nil when none exists.
func (e *Engine) Reservation(platform catalog.Platform, orderID string) []catalog.ItemPacket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]catalog.ItemPacket(nil), e.reservations[orderKey{platform, orderID}]...)
}

// RestoreOrders loads a persisted order table without reprocessing it.
func (e *Engine) RestoreOrders(persisted []Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range persisted {
		e.known[o.key()] = o
	}
}

// processOne compares a fetched order against the last known state and
// applies the matching transition. The order table is updated to the new
// order whichever branch ran, so future comparisons see the latest
// state.
func (e *Engine) processOne(o Order) {
	prev, seen := e.known[o.key()]

	switch {
	case !seen && o.Status == StatusConfirmed:
		e.handleConfirmed(o)

	case !seen && o.Status == StatusShipped:
		// First sighting already shipped: synthesize the confirmed
		// predecessor and run the full transition so stock moves
		// exactly once.
		synth := o
		synth.Status = StatusConfirmed
		e.handleConfirmed(synth)
		e.handleShipped(o)

	case !seen && o.Status == StatusCancelled:
		// No reservation ever existed; nothing to release.
		logger.Logger.Debug().
			Str("platform", string(o.Platform)).
			Str("order_id", o.OrderID).
			Msg("Ignoring first sighting of cancelled order")

	case prev.Status == o.Status:
		// Refresh only.

	case prev.Status == StatusConfirmed && o.Status == StatusShipped:
		e.handleShipped(o)

	case prev.Status == StatusConfirmed && o.Status == StatusCancelled:
		e.handleCancelled(o)

	case prev.Status == StatusShipped:
		e.anomaly(prev, o, "shipped orders are terminal")

	case prev.Status == StatusCancelled:
		e.anomaly(prev, o, "cancelled orders are terminal")
	}

	e.known[o.key()] = o
}

// handleConfirmed resolves each line against the platform SKU index and
// records a soft reservation for everything coverable. One summary entry
// is emitted, classified by the worst line outcome.
func (e *Engine) handleConfirmed(o Order) {
	worst := outcomeNormal
	details := make([]string, 0, len(o.Lines))
	var reserved []catalog.ItemPacket

	for _, line := range o.Lines {
		item, ok := e.ledger.ItemBySKU(o.Platform, line.SKU)
		if !ok {
			worst = maxOutcome(worst, outcomeUnregistered)
			details = append(details, fmt.Sprintf("%dx sku %q not registered", line.Quantity, line.SKU))
			continue
		}
		onHand := e.ledger.GetQuantity(item.Serial)
		switch {
		case onHand >= line.Quantity:
			reserved = append(reserved, catalog.ItemPacket{Serial: item.Serial, Quantity: line.Quantity})
			details = append(details, fmt.Sprintf("%dx %s reserved, %d on hand", line.Quantity, item.Serial, onHand))
		case e.ledger.IsItemInStockRecursive(item.Serial, line.Quantity):
			worst = maxOutcome(worst, outcomeComposition)
			reserved = append(reserved, catalog.ItemPacket{Serial: item.Serial, Quantity: line.Quantity})
			details = append(details, fmt.Sprintf("%dx %s reserved via composition, %d direct", line.Quantity, item.Serial, onHand))
		default:
			worst = maxOutcome(worst, outcomeOutOfStock)
			suggestions := e.ledger.PossibleBreakDowns(item.Serial, line.Quantity)
			details = append(details, fmt.Sprintf("%dx %s out of stock, %d on hand%s",
				line.Quantity, item.Serial, onHand, formatSuggestions(suggestions)))
		}
	}

	if len(reserved) > 0 {
		e.reservations[o.key()] = reserved
	}

	e.logs.Create(confirmedType(worst), 0,
		fmt.Sprintf("order %s/%s received: %s", o.Platform, o.OrderID, strings.Join(details, "; ")), "")
}

// handleShipped applies the stock movement for a confirmed-to-shipped
// transition. One unregistered SKU rejects the whole order with no
// stock change on any line; otherwise every line is decremented directly
// or through its computed breakdown. The reservation is released
// whatever the outcome.
func (e *Engine) handleShipped(o Order) {
	defer delete(e.reservations, o.key())

	unregistered := 0
	for _, line := range o.Lines {
		if _, ok := e.ledger.ItemBySKU(o.Platform, line.SKU); !ok {
			unregistered++
		}
	}
	if unregistered > 0 {
		details := make([]string, 0, len(o.Lines))
		for _, line := range o.Lines {
			if item, ok := e.ledger.ItemBySKU(o.Platform, line.SKU); ok {
				details = append(details, fmt.Sprintf("%dx %s, %d on hand",
					line.Quantity, item.Serial, e.ledger.GetQuantity(item.Serial)))
			} else {
				details = append(details, fmt.Sprintf("%dx sku %q not registered", line.Quantity, line.SKU))
			}
		}
		e.logs.Create(auditlog.TypeOrderRejected, 0,
			fmt.Sprintf("order %s/%s shipment rejected, no stock changed: %s",
				o.Platform, o.OrderID, strings.Join(details, "; ")), "")
		return
	}

	worst := outcomeNormal
	details := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		item, _ := e.ledger.ItemBySKU(o.Platform, line.SKU)
		onHand := e.ledger.GetQuantity(item.Serial)
		switch {
		case onHand >= line.Quantity:
			e.ledger.DecreaseItemAmount(item.Serial, line.Quantity)
			details = append(details, fmt.Sprintf("%dx %s shipped", line.Quantity, item.Serial))
		default:
			plan, ok := e.ledger.AmountToReduceStockRecursive(item.Serial, line.Quantity)
			if ok {
				worst = maxOutcome(worst, outcomeComposition)
				for _, p := range plan {
					e.ledger.DecreaseItemAmount(p.Serial, p.Quantity)
				}
				details = append(details, fmt.Sprintf("%dx %s shipped via breakdown of %s",
					line.Quantity, item.Serial, consumptionList(plan)))
			} else {
				worst = maxOutcome(worst, outcomeOutOfStock)
				suggestions := e.ledger.PossibleBreakDowns(item.Serial, line.Quantity)
				details = append(details, fmt.Sprintf("%dx %s out of stock, not fulfilled%s",
					line.Quantity, item.Serial, formatSuggestions(suggestions)))
			}
		}
	}

	e.logs.Create(shippedType(worst), 0,
		fmt.Sprintf("order %s/%s shipped: %s", o.Platform, o.OrderID, strings.Join(details, "; ")), "")
}

func (e *Engine) handleCancelled(o Order) {
	delete(e.reservations, o.key())
	e.logs.Create(auditlog.TypeOrderCancelled, 0,
		fmt.Sprintf("order %s/%s cancelled, reservation released", o.Platform, o.OrderID), "")
}

// anomaly records an unexpected status transition. The ledger is left
// untouched; recovery is manual.
func (e *Engine) anomaly(prev, o Order, expected string) {
	e.logs.Create(auditlog.TypeSystemError, 0,
		fmt.Sprintf("order %s/%s: unexpected status transition %s -> %s (%s); ledger untouched",
			o.Platform, o.OrderID, prev.Status, o.Status, expected), "")
}

func confirmedType(worst lineOutcome) auditlog.Type {
	switch worst {
	case outcomeUnregistered:
		return auditlog.TypeOrderReceivedUnregistered
	case outcomeOutOfStock:
		return auditlog.TypeOrderReceivedOutOfStock
	case outcomeComposition:
		return auditlog.TypeOrderReceivedComposition
	default:
		return auditlog.TypeOrderReceived
	}
}

func shippedType(worst lineOutcome) auditlog.Type {
	switch worst {
	case outcomeOutOfStock:
		return auditlog.TypeOrderShippedOutOfStock
	case outcomeComposition:
		return auditlog.TypeOrderShippedComposition
	default:
		return auditlog.TypeOrderShipped
	}
}

func maxOutcome(a, b lineOutcome) lineOutcome {
	if b > a {
		return b
	}
	return a
}

func formatSuggestions(options [][]catalog.ItemPacket) string {
	if len(options) == 0 {
		return ""
	}
	parts := make([]string, 0, len(options))
	for _, opt := range options {
		parts = append(parts, consumptionList(opt))
	}
	return "; breakdown options: " + strings.Join(parts, " | ")
}

func consumptionList(packets []catalog.ItemPacket) string {
	parts := make([]string, 0, len(packets))
	for _, p := range packets {
		parts = append(parts, fmt.Sprintf("%dx %s", p.Quantity, p.Serial))
	}
	return strings.Join(parts, " + ")
}
