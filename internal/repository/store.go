package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/stock-ledger/internal/auditlog"
	"github.com/tair/stock-ledger/internal/catalog"
	"github.com/tair/stock-ledger/internal/orders"
)

const stateKeyLastFetch = "last_fetch_at"

// Store persists the ledger through gorm on a sqlite file. It implements
// auditlog.Sink for the append-only log and carries items, orders and
// orchestrator state for snapshotting.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&ItemRecord{},
		&CompositionRecord{},
		&LogRecord{},
		&OrderRecord{},
		&StateRecord{},
	)
}

// AppendEntry implements auditlog.Sink.
func (s *Store) AppendEntry(e auditlog.Entry) error {
	return s.db.Create(logRecord(e)).Error
}

// UpdateEntryFlags implements auditlog.Sink.
func (s *Store) UpdateEntryFlags(e auditlog.Entry) error {
	return s.db.Model(&LogRecord{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"reverted":           e.Reverted,
			"solved":             e.Solved,
			"suppressed":         e.Suppressed,
			"reverted_by_log_id": e.RevertedByLogID,
		}).Error
}

// UpdateEntryMessage implements auditlog.Sink.
func (s *Store) UpdateEntryMessage(e auditlog.Entry) error {
	return s.db.Model(&LogRecord{}).
		Where("id = ?", e.ID).
		Update("message", e.Message).Error
}

// DeleteEntriesBySerial implements auditlog.Sink.
func (s *Store) DeleteEntriesBySerial(serial string) error {
	return s.db.Where("item_serial = ?", serial).Delete(&LogRecord{}).Error
}

// SaveItem upserts an item definition and replaces its composition rows.
func (s *Store) SaveItem(item *catalog.Item, composedOf []catalog.ItemPacket) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		rec := itemRecord(item)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "serial"}},
			UpdateAll: true,
		}).Create(rec).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_serial = ?", item.Serial).Delete(&CompositionRecord{}).Error; err != nil {
			return err
		}
		for _, p := range composedOf {
			edge := CompositionRecord{
				ParentSerial:    item.Serial,
				ComponentSerial: p.Serial,
				Quantity:        p.Quantity,
			}
			if err := tx.Create(&edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteItem drops an item and every composition row referencing it.
func (s *Store) DeleteItem(serial string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("serial = ?", serial).Delete(&ItemRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("parent_serial = ? OR component_serial = ?", serial, serial).
			Delete(&CompositionRecord{}).Error
	})
}

// SaveOrders upserts the latest known order states.
func (s *Store) SaveOrders(batch []orders.Order) error {
	for _, o := range batch {
		lines, err := json.Marshal(o.Lines)
		if err != nil {
			return fmt.Errorf("failed to marshal order lines: %w", err)
		}
		rec := OrderRecord{
			Platform:  string(o.Platform),
			OrderID:   o.OrderID,
			Status:    string(o.Status),
			Lines:     string(lines),
			UpdatedAt: o.UpdatedAt,
		}
		err = s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "order_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     rec.Status,
				"lines":      rec.Lines,
				"updated_at": rec.UpdatedAt,
			}),
		}).Create(&rec).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// SetLastFetch stores the timestamp of the last completed fetch run.
func (s *Store) SetLastFetch(t time.Time) error {
	rec := StateRecord{Key: stateKeyLastFetch, Value: t.Format(time.RFC3339Nano)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"value": rec.Value}),
	}).Create(&rec).Error
}

// StoredItem pairs a loaded item with its composition list.
type StoredItem struct {
	Item       *catalog.Item
	ComposedOf []catalog.ItemPacket
}

// Snapshot is everything loaded at startup.
type Snapshot struct {
	Items     []StoredItem
	Entries   []*auditlog.Entry
	Orders    []orders.Order
	LastFetch time.Time
}

// Load reads the full persisted state. Entries come back in id order so
// replay is deterministic.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{}

	var items []ItemRecord
	if err := s.db.Order("serial ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	var edges []CompositionRecord
	if err := s.db.Order("id ASC").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to load compositions: %w", err)
	}
	byParent := make(map[string][]catalog.ItemPacket)
	for _, e := range edges {
		byParent[e.ParentSerial] = append(byParent[e.ParentSerial], catalog.ItemPacket{
			Serial:   e.ComponentSerial,
			Quantity: e.Quantity,
		})
	}
	for _, rec := range items {
		snap.Items = append(snap.Items, StoredItem{
			Item:       itemFromRecord(rec),
			ComposedOf: byParent[rec.Serial],
		})
	}

	var logs []LogRecord
	if err := s.db.Order("id ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	for _, rec := range logs {
		snap.Entries = append(snap.Entries, entryFromRecord(rec))
	}

	var orderRecs []OrderRecord
	if err := s.db.Find(&orderRecs).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	for _, rec := range orderRecs {
		o, err := orderFromRecord(rec)
		if err != nil {
			return nil, err
		}
		snap.Orders = append(snap.Orders, o)
	}

	var state StateRecord
	err := s.db.Where("key = ?", stateKeyLastFetch).First(&state).Error
	switch {
	case err == nil:
		if t, perr := time.Parse(time.RFC3339Nano, state.Value); perr == nil {
			snap.LastFetch = t
		}
	case err != gorm.ErrRecordNotFound:
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return snap, nil
}

func itemRecord(item *catalog.Item) *ItemRecord {
	return &ItemRecord{
		Serial:          item.Serial,
		Name:            item.Name,
		Icon:            item.Icon,
		LowStockTrigger: item.LowStockTrigger,
		EbaySKU:         item.SKU(catalog.PlatformEbay),
		AmazonSKU:       item.SKU(catalog.PlatformAmazon),
		EtsySKU:         item.SKU(catalog.PlatformEtsy),
	}
}

func itemFromRecord(rec ItemRecord) *catalog.Item {
	skus := make(map[catalog.Platform]string)
	if rec.EbaySKU != "" {
		skus[catalog.PlatformEbay] = rec.EbaySKU
	}
	if rec.AmazonSKU != "" {
		skus[catalog.PlatformAmazon] = rec.AmazonSKU
	}
	if rec.EtsySKU != "" {
		skus[catalog.PlatformEtsy] = rec.EtsySKU
	}
	if len(skus) == 0 {
		skus = nil
	}
	return &catalog.Item{
		Serial:          rec.Serial,
		Name:            rec.Name,
		Icon:            rec.Icon,
		LowStockTrigger: rec.LowStockTrigger,
		SKUs:            skus,
	}
}

func logRecord(e auditlog.Entry) *LogRecord {
	return &LogRecord{
		ID:              e.ID,
		Type:            string(e.Type),
		Severity:        e.Severity.String(),
		Amount:          e.Amount,
		ItemSerial:      e.ItemSerial,
		Message:         e.Message,
		Reverted:        e.Reverted,
		Solved:          e.Solved,
		Suppressed:      e.Suppressed,
		RevertedLogID:   e.RevertedLogID,
		RevertedByLogID: e.RevertedByLogID,
		CreatedAt:       e.Timestamp,
	}
}

func entryFromRecord(rec LogRecord) *auditlog.Entry {
	t := auditlog.Type(rec.Type)
	return &auditlog.Entry{
		ID:              rec.ID,
		Type:            t,
		Severity:        auditlog.SeverityOf(t),
		Amount:          rec.Amount,
		ItemSerial:      rec.ItemSerial,
		Message:         rec.Message,
		Timestamp:       rec.CreatedAt,
		Reverted:        rec.Reverted,
		Solved:          rec.Solved,
		Suppressed:      rec.Suppressed,
		RevertedLogID:   rec.RevertedLogID,
		RevertedByLogID: rec.RevertedByLogID,
	}
}

func orderFromRecord(rec OrderRecord) (orders.Order, error) {
	var lines []orders.Line
	if rec.Lines != "" {
		if err := json.Unmarshal([]byte(rec.Lines), &lines); err != nil {
			return orders.Order{}, fmt.Errorf("failed to unmarshal order lines: %w", err)
		}
	}
	return orders.Order{
		Platform:  catalog.Platform(rec.Platform),
		OrderID:   rec.OrderID,
		Status:    orders.Status(rec.Status),
		Lines:     lines,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
