package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
)

// maxBreakdownOptions caps how many distinct breakdown option sets are
// surfaced to callers.
const maxBreakdownOptions = 3

// IsItemInStockRecursive reports whether the required quantity of an
// item can be covered by on-hand stock plus breaking down items that
// compose into it, recursing through the composition graph. The graph
// may contain cycles; the walk never revisits a serial already on the
// current path, and never consumes more of any item than is on hand.
func (l *Ledger) IsItemInStockRecursive(serial string, needed int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, known := l.quantities[serial]; !known {
		return false
	}
	if needed <= 0 {
		return true
	}
	consumed := make(map[string]int)
	return l.planReduction(serial, needed, make(map[string]bool), consumed, nil) == 0
}

// AmountToReduceStockRecursive computes the concrete multiset of items
// to consume so that the required quantity of the target becomes
// available: direct stock first, then parents broken down recursively.
// The second return is false when the shortfall cannot be covered.
func (l *Ledger) AmountToReduceStockRecursive(serial string, needed int) ([]catalog.ItemPacket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, known := l.quantities[serial]; !known {
		return nil, false
	}
	if needed <= 0 {
		return nil, true
	}
	consumed := make(map[string]int)
	if l.planReduction(serial, needed, make(map[string]bool), consumed, nil) > 0 {
		return nil, false
	}
	return packetsFromConsumption(consumed), true
}

// PossibleBreakDowns enumerates up to three distinct breakdown option
// sets able to cover the required quantity, for presentation to the
// user. Options are ranked by total units consumed, then by the number
// of distinct serials involved, then lexically over the serial list, so
// the result does not depend on enumeration order.
func (l *Ledger) PossibleBreakDowns(serial string, needed int) [][]catalog.ItemPacket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, known := l.quantities[serial]; !known || needed <= 0 {
		return nil
	}

	type option struct {
		packets  []catalog.ItemPacket
		total    int
		distinct int
		sig      string
	}

	var options []option
	seen := make(map[string]bool)

	try := func(parents []catalog.ItemPacket) {
		consumed := make(map[string]int)
		if l.planReduction(serial, needed, make(map[string]bool), consumed, parents) > 0 {
			return
		}
		packets := packetsFromConsumption(consumed)
		sig := consumptionSignature(packets)
		if seen[sig] {
			return
		}
		seen[sig] = true
		total := 0
		for _, p := range packets {
			total += p.Quantity
		}
		options = append(options, option{packets, total, len(packets), sig})
	}

	parents := l.sortedParents(serial)
	try(parents)
	for i := 1; i < len(parents); i++ {
		try(append(append([]catalog.ItemPacket(nil), parents[i:]...), parents[:i]...))
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].total != options[j].total {
			return options[i].total < options[j].total
		}
		if options[i].distinct != options[j].distinct {
			return options[i].distinct < options[j].distinct
		}
		return options[i].sig < options[j].sig
	})

	out := make([][]catalog.ItemPacket, 0, min(len(options), maxBreakdownOptions))
	for _, o := range options {
		if len(out) == maxBreakdownOptions {
			break
		}
		out = append(out, o.packets)
	}
	return out
}

// BreakDownItem destroys one unit of the item to recover its remaining
// components: the declared composition minus what the caller already
// consumed, entries at or below zero dropped. The residual flows back
// into the ledger as positive stock and is returned.
func (l *Ledger) BreakDownItem(serial string, consumed []catalog.ItemPacket) []catalog.ItemPacket {
	l.mu.Lock()
	if _, known := l.quantities[serial]; !known {
		l.mu.Unlock()
		return nil
	}

	used := make(map[string]int)
	for _, p := range consumed {
		used[p.Serial] += p.Quantity
	}
	var residual []catalog.ItemPacket
	for _, comp := range l.catalog.ComposedOf(serial) {
		rest := comp.Quantity - used[comp.Serial]
		if rest > 0 {
			residual = append(residual, catalog.ItemPacket{Serial: comp.Serial, Quantity: rest})
		}
	}

	l.quantities[serial] = max(l.quantities[serial]-1, 0)
	l.mu.Unlock()

	mutationsTotal.WithLabelValues("breakdown").Inc()
	l.logs.Create(auditlog.TypeItemBrokenDown, -1,
		fmt.Sprintf("broke down one unit of %s", serial), serial)
	l.ProcessItemPacketList(residual)
	return residual
}

// planReduction greedily covers the needed quantity of serial: direct
// stock first, then each parent in order, breaking down as many parent
// units as the shortfall requires. consumed accumulates across the whole
// plan so no serial is ever drawn past its on-hand stock, and visited
// guards the current recursion path against cycles. Returns the
// uncovered remainder. Callers must hold at least a read lock.
func (l *Ledger) planReduction(serial string, needed int, visited map[string]bool, consumed map[string]int, parents []catalog.ItemPacket) int {
	avail := l.quantities[serial] - consumed[serial]
	take := min(max(avail, 0), needed)
	if take > 0 {
		consumed[serial] += take
	}
	short := needed - take
	if short <= 0 {
		return 0
	}

	visited[serial] = true
	defer delete(visited, serial)

	if parents == nil {
		parents = l.sortedParents(serial)
	}
	for _, parent := range parents {
		if visited[parent.Serial] || parent.Quantity <= 0 {
			continue
		}
		units := (short + parent.Quantity - 1) / parent.Quantity
		remaining := l.planReduction(parent.Serial, units, visited, consumed, nil)
		got := units - remaining
		if got <= 0 {
			continue
		}
		short -= got * parent.Quantity
		if short <= 0 {
			return 0
		}
	}
	return short
}

func (l *Ledger) sortedParents(serial string) []catalog.ItemPacket {
	parents := l.catalog.ComposesInto(serial)
	sort.Slice(parents, func(i, j int) bool { return parents[i].Serial < parents[j].Serial })
	return parents
}

func packetsFromConsumption(consumed map[string]int) []catalog.ItemPacket {
	serials := make([]string, 0, len(consumed))
	for s, q := range consumed {
		if q > 0 {
			serials = append(serials, s)
		}
	}
	sort.Strings(serials)
	packets := make([]catalog.ItemPacket, 0, len(serials))
	for _, s := range serials {
		packets = append(packets, catalog.ItemPacket{Serial: s, Quantity: consumed[s]})
	}
	return packets
}

func consumptionSignature(packets []catalog.ItemPacket) string {
	parts := make([]string, 0, len(packets))
	for _, p := range packets {
		parts = append(parts, fmt.Sprintf("%s:%d", p.Serial, p.Quantity))
	}
	return strings.Join(parts, ",")
}
