package auditlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tair/stock-ledger/pkg/logger"
)

var entriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auditlog_entries_created_total",
	Help: "Audit entries created, by severity",
}, []string{"severity"})

var openEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "auditlog_open_entries",
	Help: "Unsolved audit entries, by severity",
}, []string{"severity"})

// Listener is notified after every quantity-affecting entry. The ledger
// registers itself here to re-run its stock threshold check.
type Listener interface {
	HandleQuantityChange() error
}

// QuantityApplier applies a signed stock delta without emitting a new
// quantity entry. Used by Revert so the reverter entry stays the only
// record of the inverse movement.
type QuantityApplier interface {
	ApplyDelta(serial string, delta int)
}

// Observer receives a copy of every entry after it is recorded. Called
// on a separate goroutine so a slow observer cannot block the core.
type Observer interface {
	EntryLogged(e Entry)
}

// Sink persists entries. Append happens once per entry; later changes
// only touch the mutable columns.
type Sink interface {
	AppendEntry(e Entry) error
	UpdateEntryFlags(e Entry) error
	UpdateEntryMessage(e Entry) error
	DeleteEntriesBySerial(serial string) error
}

// Manager owns the audit log: the master chronological record, the
// per-severity buckets, the serial index, and the id sequence.
type Manager struct {
	mu       sync.Mutex
	seq      int64
	entries  []*Entry
	buckets  map[Severity][]*Entry
	bySerial map[string][]*Entry

	listeners []Listener
	observers []Observer
	applier   QuantityApplier
	sink      Sink

	retryDelay time.Duration
}

// NewManager creates a manager writing through the given sink. A nil
// sink keeps the log in memory only.
func NewManager(sink Sink) *Manager {
	return &Manager{
		buckets:    make(map[Severity][]*Entry),
		bySerial:   make(map[string][]*Entry),
		sink:       sink,
		retryDelay: 100 * time.Millisecond,
	}
}

// Subscribe registers a quantity-change listener.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// AddObserver registers a change observer.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// SetApplier wires the ledger-side delta applier used by Revert.
func (m *Manager) SetApplier(a QuantityApplier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applier = a
}

// SetRetryDelay overrides the listener retry delay.
func (m *Manager) SetRetryDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryDelay = d
}

// Create records a new entry and returns it. Quantity-affecting types
// trigger the registered listeners; every entry is pushed to observers.
func (m *Manager) Create(t Type, amount int, message, serial string) *Entry {
	m.mu.Lock()
	m.seq++
	e := &Entry{
		ID:         m.seq,
		Type:       t,
		Severity:   SeverityOf(t),
		Amount:     amount,
		Message:    message,
		ItemSerial: serial,
		Timestamp:  time.Now(),
	}
	m.index(e)
	m.mu.Unlock()

	entriesCreated.WithLabelValues(e.Severity.String()).Inc()
	m.persistAppend(e)
	if t.AffectsQuantity() {
		m.notifyListeners()
	}
	m.notifyObservers(*e)
	return e
}

// Revert undoes the ledger effect of a normal quantity entry. The
// reverter's amount is derived as the negation of the original, so the
// magnitudes always match. Returns nil for entries outside the
// revertible set; that is a guard, not an error.
func (m *Manager) Revert(orig *Entry) *Entry {
	m.mu.Lock()
	if !Revertible(orig) {
		m.mu.Unlock()
		return nil
	}
	m.seq++
	rev := &Entry{
		ID:            m.seq,
		Type:          TypeLogReverted,
		Severity:      SeverityOf(TypeLogReverted),
		Amount:        -orig.Amount,
		ItemSerial:    orig.ItemSerial,
		Message:       fmt.Sprintf("reverts log #%d (%s)", orig.ID, orig.Type),
		Timestamp:     time.Now(),
		RevertedLogID: orig.ID,
	}
	orig.Reverted = true
	orig.RevertedByLogID = rev.ID
	m.index(rev)
	applier := m.applier
	m.mu.Unlock()

	if applier != nil {
		applier.ApplyDelta(orig.ItemSerial, rev.Amount)
	}

	entriesCreated.WithLabelValues(rev.Severity.String()).Inc()
	m.persistAppend(rev)
	m.persistFlags(orig)
	m.notifyListeners()
	m.notifyObservers(*rev)
	return rev
}

// Entries returns the master chronological record.
func (m *Manager) Entries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Entry(nil), m.entries...)
}

// BySeverity returns the open entries in one severity bucket.
func (m *Manager) BySeverity(s Severity) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Entry(nil), m.buckets[s]...)
}

// BySerial returns all entries recorded against an item.
func (m *Manager) BySerial(serial string) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Entry(nil), m.bySerial[serial]...)
}

// ByID finds an entry by id.
func (m *Manager) ByID(id int64) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// OpenAlert finds the unsolved entry of the given type for an item, if
// one exists. The threshold check uses this to keep at most one open
// low-stock or out-of-stock entry per item.
func (m *Manager) OpenAlert(serial string, t Type) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.bySerial[serial] {
		if e.Type == t && !e.Solved && !e.Reverted {
			return e
		}
	}
	return nil
}

// UpdateMessage rewrites an entry's message, the only free-text field
// that stays mutable.
func (m *Manager) UpdateMessage(e *Entry, message string) {
	m.mu.Lock()
	e.Message = message
	m.mu.Unlock()
	if m.sink != nil {
		if err := m.sink.UpdateEntryMessage(*e); err != nil {
			logger.Logger.Error().Err(err).Int64("log_id", e.ID).Msg("Failed to persist entry message")
		}
	}
	m.notifyObservers(*e)
}

// Resolve marks an entry solved and drops it from its severity bucket.
// The master record keeps it for the audit trail; replay skips it.
func (m *Manager) Resolve(e *Entry) {
	m.mu.Lock()
	e.Solved = true
	m.buckets[e.Severity] = dropEntry(m.buckets[e.Severity], e.ID)
	m.updateGauges()
	m.mu.Unlock()
	m.persistFlags(e)
	m.notifyObservers(*e)
}

// PurgeSerial deletes an item's entire log history from the master
// record, every severity bucket, the serial index, and the sink.
func (m *Manager) PurgeSerial(serial string) {
	m.mu.Lock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.ItemSerial == serial {
			m.buckets[e.Severity] = dropEntry(m.buckets[e.Severity], e.ID)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	delete(m.bySerial, serial)
	m.updateGauges()
	m.mu.Unlock()

	if m.sink != nil {
		if err := m.sink.DeleteEntriesBySerial(serial); err != nil {
			logger.Logger.Error().Err(err).Str("serial", serial).Msg("Failed to purge entries")
		}
	}
}

// Restore loads previously persisted entries, rebuilding the buckets and
// indices and advancing the id sequence past the highest loaded id.
// Solved entries stay in the master record but out of the buckets.
func (m *Manager) Restore(entries []*Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries = append(m.entries, e)
		if !e.Solved {
			m.buckets[e.Severity] = append(m.buckets[e.Severity], e)
		}
		if e.ItemSerial != "" {
			m.bySerial[e.ItemSerial] = append(m.bySerial[e.ItemSerial], e)
		}
		if e.ID > m.seq {
			m.seq = e.ID
		}
	}
	m.updateGauges()
}

func (m *Manager) index(e *Entry) {
	m.entries = append(m.entries, e)
	m.buckets[e.Severity] = append(m.buckets[e.Severity], e)
	if e.ItemSerial != "" {
		m.bySerial[e.ItemSerial] = append(m.bySerial[e.ItemSerial], e)
	}
	m.updateGauges()
}

// updateGauges mirrors bucket sizes into the open-entries gauge. Callers
// hold m.mu.
func (m *Manager) updateGauges() {
	for _, s := range []Severity{SeverityNormal, SeverityWarning, SeverityCritical} {
		openEntries.WithLabelValues(s.String()).Set(float64(len(m.buckets[s])))
	}
}

// notifyListeners runs the threshold listeners. A failing listener is
// retried once after a short delay; a second failure is surfaced in the
// log and abandoned for this notification only.
func (m *Manager) notifyListeners() {
	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	delay := m.retryDelay
	m.mu.Unlock()

	for _, l := range listeners {
		err := l.HandleQuantityChange()
		if err == nil {
			continue
		}
		logger.Logger.Warn().Err(err).Msg("Threshold check failed, retrying")
		time.Sleep(delay)
		if err := l.HandleQuantityChange(); err != nil {
			logger.Logger.Error().Err(err).Msg("Threshold check failed after retry")
		}
	}
}

func (m *Manager) notifyObservers(e Entry) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, o := range observers {
		go o.EntryLogged(e)
	}
}

func (m *Manager) persistAppend(e *Entry) {
	if m.sink == nil {
		return
	}
	if err := m.sink.AppendEntry(*e); err != nil {
		logger.Logger.Error().Err(err).Int64("log_id", e.ID).Msg("Failed to persist entry")
	}
}

func (m *Manager) persistFlags(e *Entry) {
	if m.sink == nil {
		return
	}
	if err := m.sink.UpdateEntryFlags(*e); err != nil {
		logger.Logger.Error().Err(err).Int64("log_id", e.ID).Msg("Failed to persist entry flags")
	}
}

func dropEntry(entries []*Entry, id int64) []*Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
