package auditlog

import "time"

// Type classifies an audit entry. The set is closed; severity is derived
// from it and never stored independently.
type Type string

const (
	TypeItemCreated    Type = "item_created"
	TypeItemAdded      Type = "item_added"
	TypeItemSold       Type = "item_sold"
	TypeItemUpdated    Type = "item_updated"
	TypeItemRemoved    Type = "item_removed"
	TypeItemBrokenDown Type = "item_broken_down"

	TypeLowStock   Type = "low_stock"
	TypeOutOfStock Type = "out_of_stock"

	TypeOrderReceived             Type = "order_received"
	TypeOrderReceivedComposition  Type = "order_received_composition"
	TypeOrderReceivedOutOfStock   Type = "order_received_out_of_stock"
	TypeOrderReceivedUnregistered Type = "order_received_unregistered"
	TypeOrderShipped              Type = "order_shipped"
	TypeOrderShippedComposition   Type = "order_shipped_composition"
	TypeOrderShippedOutOfStock    Type = "order_shipped_out_of_stock"
	TypeOrderRejected             Type = "order_rejected"
	TypeOrderCancelled            Type = "order_cancelled"

	TypeLogReverted Type = "log_reverted"
	TypeSystemError Type = "system_error"
)

// Severity ranks how urgently an entry needs attention.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// SeverityOf derives the severity for an entry type.
func SeverityOf(t Type) Severity {
	switch t {
	case TypeLowStock, TypeOrderReceivedUnregistered:
		return SeverityWarning
	case TypeOutOfStock, TypeOrderReceivedOutOfStock, TypeOrderShippedOutOfStock,
		TypeOrderRejected, TypeSystemError:
		return SeverityCritical
	default:
		return SeverityNormal
	}
}

// AffectsQuantity reports whether entries of this type carry a stock
// movement. These are the entries that trigger the threshold listener
// and that startup replay applies to the ledger.
func (t Type) AffectsQuantity() bool {
	switch t {
	case TypeItemCreated, TypeItemAdded, TypeItemSold, TypeItemUpdated,
		TypeItemBrokenDown, TypeLogReverted:
		return true
	}
	return false
}

// Entry is one record in the append-only audit log. Everything except
// Message and the Reverted/Solved/Suppressed flags is immutable after
// construction. IDs are assigned by the owning Manager and increase
// monotonically for the life of the process.
type Entry struct {
	ID         int64     `json:"id"`
	Type       Type      `json:"type"`
	Severity   Severity  `json:"severity"`
	Amount     int       `json:"amount"`
	ItemSerial string    `json:"item_serial,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`

	Reverted   bool `json:"reverted"`
	Solved     bool `json:"solved"`
	Suppressed bool `json:"suppressed"`

	RevertedLogID   int64 `json:"reverted_log_id,omitempty"`
	RevertedByLogID int64 `json:"reverted_by_log_id,omitempty"`
}

// Revertible reports whether the entry's ledger effect can be undone.
// Only normal-severity quantity movements (adds and sales) qualify, and
// only once.
func Revertible(e *Entry) bool {
	if e == nil || e.Reverted {
		return false
	}
	if e.Severity != SeverityNormal {
		return false
	}
	return e.Type == TypeItemAdded || e.Type == TypeItemSold
}
