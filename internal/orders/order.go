package orders

import (
	"time"

	"github.com/tair/stock-ledger/internal/catalog"
)

// Status is a marketplace order lifecycle state. Confirmed orders may
// move to shipped or cancelled; shipped and cancelled are terminal.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusCancelled Status = "CANCELLED"
)

// Line is one order position, referencing the item by its marketplace
// SKU.
type Line struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Order is the latest known state of a marketplace order. Identity is
// (platform, order id).
type Order struct {
	Platform  catalog.Platform `json:"platform"`
	OrderID   string           `json:"order_id"`
	Status    Status           `json:"status"`
	Lines     []Line           `json:"lines"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type orderKey struct {
	platform catalog.Platform
	id       string
}

func (o Order) key() orderKey {
	return orderKey{platform: o.Platform, id: o.OrderID}
}
