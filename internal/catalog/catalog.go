package catalog

import (
	"sort"
	"sync"
)

// Catalog owns item definitions and the composition graph between them.
// Edges are stored as serial-indexed adjacency lists in both directions:
// composedOf[parent] lists the components one unit of parent is built
// from, composesInto[component] lists the parents that contain it and
// how many units of the component each parent yields when broken down.
//
// The graph is not required to be acyclic; traversals over it must carry
// their own visited set.
type Catalog struct {
	mu           sync.RWMutex
	items        map[string]*Item
	composedOf   map[string][]ItemPacket
	composesInto map[string][]ItemPacket
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		items:        make(map[string]*Item),
		composedOf:   make(map[string][]ItemPacket),
		composesInto: make(map[string][]ItemPacket),
	}
}

// Register adds a new item with its composition list. It returns false
// without touching anything when the serial is already taken.
func (c *Catalog) Register(item *Item, composedOf []ItemPacket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[item.Serial]; exists {
		return false
	}

	c.items[item.Serial] = item
	for _, p := range composedOf {
		if p.Quantity <= 0 {
			continue
		}
		c.composedOf[item.Serial] = append(c.composedOf[item.Serial], p)
		c.composesInto[p.Serial] = append(c.composesInto[p.Serial], ItemPacket{
			Serial:   item.Serial,
			Quantity: p.Quantity,
		})
	}
	return true
}

// SetComposition replaces the component list of an existing item. Old
// edges are severed in both directions before the new ones are added;
// non-positive quantities are skipped as in Register. Returns false for
// an unknown serial.
func (c *Catalog) SetComposition(serial string, composedOf []ItemPacket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[serial]; !exists {
		return false
	}

	for _, comp := range c.composedOf[serial] {
		c.composesInto[comp.Serial] = dropSerial(c.composesInto[comp.Serial], serial)
	}
	delete(c.composedOf, serial)

	for _, p := range composedOf {
		if p.Quantity <= 0 {
			continue
		}
		c.composedOf[serial] = append(c.composedOf[serial], p)
		c.composesInto[p.Serial] = append(c.composesInto[p.Serial], ItemPacket{
			Serial:   serial,
			Quantity: p.Quantity,
		})
	}
	return true
}

// Get looks an item up by serial.
func (c *Catalog) Get(serial string) (*Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[serial]
	return item, ok
}

// Items returns all registered items sorted by serial.
func (c *Catalog) Items() []*Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Item, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Remove deletes an item and severs every composition edge pointing to
// or from it, in both directions. Self-edges are skipped so the maps
// being mutated are never the ones being iterated. Returns false for an
// unknown serial.
func (c *Catalog) Remove(serial string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[serial]; !exists {
		return false
	}

	for _, parent := range c.composesInto[serial] {
		if parent.Serial == serial {
			continue
		}
		c.composedOf[parent.Serial] = dropSerial(c.composedOf[parent.Serial], serial)
	}
	for _, component := range c.composedOf[serial] {
		if component.Serial == serial {
			continue
		}
		c.composesInto[component.Serial] = dropSerial(c.composesInto[component.Serial], serial)
	}

	delete(c.composedOf, serial)
	delete(c.composesInto, serial)
	delete(c.items, serial)
	return true
}

// ComposedOf returns a copy of the component list for one unit of the
// given item.
func (c *Catalog) ComposedOf(serial string) []ItemPacket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return clonePackets(c.composedOf[serial])
}

// ComposesInto returns a copy of the parents containing the given item.
// Each packet's quantity is the number of units of the item recovered by
// breaking one unit of that parent down.
func (c *Catalog) ComposesInto(serial string) []ItemPacket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return clonePackets(c.composesInto[serial])
}

func dropSerial(packets []ItemPacket, serial string) []ItemPacket {
	out := packets[:0]
	for _, p := range packets {
		if p.Serial != serial {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clonePackets(packets []ItemPacket) []ItemPacket {
	if len(packets) == 0 {
		return nil
	}
	out := make([]ItemPacket, len(packets))
	copy(out, packets)
	return out
}
