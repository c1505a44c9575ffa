package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBuildsBothEdgeDirections(t *testing.T) {
	c := New()

	require.True(t, c.Register(&Item{Serial: "Y", Name: "Component"}, nil))
	require.True(t, c.Register(&Item{Serial: "X", Name: "Bundle"}, []ItemPacket{
		{Serial: "Y", Quantity: 2},
	}))

	assert.Equal(t, []ItemPacket{{Serial: "Y", Quantity: 2}}, c.ComposedOf("X"))
	assert.Equal(t, []ItemPacket{{Serial: "X", Quantity: 2}}, c.ComposesInto("Y"))
}

func TestRegisterRejectsDuplicateSerial(t *testing.T) {
	c := New()

	require.True(t, c.Register(&Item{Serial: "X", Name: "First"}, nil))
	assert.False(t, c.Register(&Item{Serial: "X", Name: "Second"}, nil))

	item, ok := c.Get("X")
	require.True(t, ok)
	assert.Equal(t, "First", item.Name)
}

func TestRegisterSkipsNonPositiveEdges(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "Y"}, nil)
	c.Register(&Item{Serial: "X"}, []ItemPacket{
		{Serial: "Y", Quantity: 0},
		{Serial: "Y", Quantity: -3},
	})

	assert.Empty(t, c.ComposedOf("X"))
	assert.Empty(t, c.ComposesInto("Y"))
}

func TestRemoveSeversEdgesInBothDirections(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "Y"}, nil)
	c.Register(&Item{Serial: "Z"}, nil)
	c.Register(&Item{Serial: "X"}, []ItemPacket{
		{Serial: "Y", Quantity: 2},
		{Serial: "Z", Quantity: 1},
	})

	require.True(t, c.Remove("Y"))

	_, ok := c.Get("Y")
	assert.False(t, ok)
	assert.Equal(t, []ItemPacket{{Serial: "Z", Quantity: 1}}, c.ComposedOf("X"))
	assert.Empty(t, c.ComposesInto("Y"))

	// removing the parent clears the remaining reverse edge too
	require.True(t, c.Remove("X"))
	assert.Empty(t, c.ComposesInto("Z"))
}

func TestSetCompositionReplacesEdges(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "Y"}, nil)
	c.Register(&Item{Serial: "Z"}, nil)
	c.Register(&Item{Serial: "X"}, []ItemPacket{{Serial: "Y", Quantity: 2}})

	require.True(t, c.SetComposition("X", []ItemPacket{{Serial: "Z", Quantity: 3}}))

	assert.Equal(t, []ItemPacket{{Serial: "Z", Quantity: 3}}, c.ComposedOf("X"))
	assert.Empty(t, c.ComposesInto("Y"), "old reverse edge severed")
	assert.Equal(t, []ItemPacket{{Serial: "X", Quantity: 3}}, c.ComposesInto("Z"))

	require.True(t, c.SetComposition("X", nil))
	assert.Empty(t, c.ComposedOf("X"))
	assert.Empty(t, c.ComposesInto("Z"))

	assert.False(t, c.SetComposition("ghost", nil))
}

func TestRemoveUnknownSerial(t *testing.T) {
	c := New()
	assert.False(t, c.Remove("nope"))
}

func TestRemoveItemWithSelfEdge(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "X"}, []ItemPacket{{Serial: "X", Quantity: 1}})
	require.True(t, c.Remove("X"))

	_, ok := c.Get("X")
	assert.False(t, ok)
	assert.Empty(t, c.Items())
}

func TestItemsSortedBySerial(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "b"}, nil)
	c.Register(&Item{Serial: "a"}, nil)
	c.Register(&Item{Serial: "c"}, nil)

	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Serial)
	assert.Equal(t, "b", items[1].Serial)
	assert.Equal(t, "c", items[2].Serial)
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	c := New()

	c.Register(&Item{Serial: "Y"}, nil)
	c.Register(&Item{Serial: "X"}, []ItemPacket{{Serial: "Y", Quantity: 2}})

	got := c.ComposedOf("X")
	got[0].Quantity = 99

	assert.Equal(t, 2, c.ComposedOf("X")[0].Quantity)
}

func TestItemSKULookup(t *testing.T) {
	item := &Item{Serial: "X", SKUs: map[Platform]string{PlatformEbay: "EB-1"}}

	assert.Equal(t, "EB-1", item.SKU(PlatformEbay))
	assert.Equal(t, "", item.SKU(PlatformAmazon))
}
