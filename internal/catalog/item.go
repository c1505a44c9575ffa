package catalog

// Platform identifies one of the marketplaces the reseller lists on.
type Platform string

const (
	PlatformEbay   Platform = "ebay"
	PlatformAmazon Platform = "amazon"
	PlatformEtsy   Platform = "etsy"
)

// Platforms returns all supported marketplaces in a fixed order.
func Platforms() []Platform {
	return []Platform{PlatformEbay, PlatformAmazon, PlatformEtsy}
}

// Item is a stocked good. Identity is the serial number alone; every
// other attribute may change over the item's lifetime.
type Item struct {
	Serial          string              `json:"serial"`
	Name            string              `json:"name"`
	Icon            string              `json:"icon,omitempty"`
	LowStockTrigger int                 `json:"low_stock_trigger"`
	SKUs            map[Platform]string `json:"skus,omitempty"`
}

// SKU returns the item's listing SKU on the given platform, or "" when
// the item is not listed there.
func (i *Item) SKU(p Platform) string {
	if i.SKUs == nil {
		return ""
	}
	return i.SKUs[p]
}

// ItemPacket is a quantity-tagged reference to an item. It is the unit
// of composition and of every inventory movement; it is never persisted
// on its own.
type ItemPacket struct {
	Serial   string `json:"serial"`
	Quantity int    `json:"quantity"`
}
