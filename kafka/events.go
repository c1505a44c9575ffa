package kafka

import "time"

// LedgerEntryEvent mirrors one audit entry onto the event bus so
// downstream consumers (the rendering shell, alerting) can redraw
// without polling the core.
type LedgerEntryEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	LogID      int64     `json:"log_id"`
	LogType    string    `json:"log_type"`
	Severity   string    `json:"severity"`
	ItemSerial string    `json:"item_serial,omitempty"`
	Amount     int       `json:"amount"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event types
const (
	EventTypeLedgerEntry = "ledger.entry"
)

// Kafka topics
const (
	TopicLedgerEntries = "ledger-entries"
)
