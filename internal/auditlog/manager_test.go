package auditlog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityDerivedFromType(t *testing.T) {
	assert.Equal(t, SeverityWarning, SeverityOf(TypeLowStock))
	assert.Equal(t, SeverityWarning, SeverityOf(TypeOrderReceivedUnregistered))
	assert.Equal(t, SeverityCritical, SeverityOf(TypeOutOfStock))
	assert.Equal(t, SeverityCritical, SeverityOf(TypeOrderRejected))
	assert.Equal(t, SeverityCritical, SeverityOf(TypeSystemError))
	assert.Equal(t, SeverityNormal, SeverityOf(TypeItemAdded))
	assert.Equal(t, SeverityNormal, SeverityOf(TypeOrderShipped))
}

func TestCreateAssignsMonotonicIDsAndIndexes(t *testing.T) {
	m := NewManager(nil)

	first := m.Create(TypeItemAdded, 3, "added", "X")
	second := m.Create(TypeLowStock, 0, "low", "X")

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Len(t, m.Entries(), 2)
	assert.Len(t, m.BySerial("X"), 2)
	assert.Len(t, m.BySeverity(SeverityNormal), 1)
	assert.Len(t, m.BySeverity(SeverityWarning), 1)
	assert.Equal(t, second, m.ByID(2))
}

func TestRevertDerivesInverseAmount(t *testing.T) {
	m := NewManager(nil)
	applied := make(map[string]int)
	m.SetApplier(applierFunc(func(serial string, delta int) {
		applied[serial] += delta
	}))

	orig := m.Create(TypeItemAdded, 5, "added", "X")
	rev := m.Revert(orig)

	require.NotNil(t, rev)
	assert.Equal(t, TypeLogReverted, rev.Type)
	assert.Equal(t, -5, rev.Amount)
	assert.Equal(t, orig.ID, rev.RevertedLogID)
	assert.True(t, orig.Reverted)
	assert.Equal(t, rev.ID, orig.RevertedByLogID)
	assert.Equal(t, -5, applied["X"])
}

func TestRevertGuardsNonRevertibleEntries(t *testing.T) {
	m := NewManager(nil)

	low := m.Create(TypeLowStock, 0, "low", "X")
	assert.Nil(t, m.Revert(low), "non-normal severity is not revertible")

	created := m.Create(TypeItemCreated, 5, "created", "X")
	assert.Nil(t, m.Revert(created), "creation entries are not revertible")

	sold := m.Create(TypeItemSold, -2, "sold", "X")
	require.NotNil(t, m.Revert(sold))
	assert.Nil(t, m.Revert(sold), "an entry reverts at most once")

	assert.Nil(t, m.Revert(nil))
}

func TestResolveDropsFromBucketKeepsMasterRecord(t *testing.T) {
	m := NewManager(nil)

	e := m.Create(TypeOutOfStock, 0, "out", "X")
	m.Resolve(e)

	assert.True(t, e.Solved)
	assert.Empty(t, m.BySeverity(SeverityCritical))
	assert.Len(t, m.Entries(), 1)
}

func TestOpenAlertFindsOnlyUnsolvedEntries(t *testing.T) {
	m := NewManager(nil)

	e := m.Create(TypeLowStock, 0, "low", "X")
	assert.Equal(t, e, m.OpenAlert("X", TypeLowStock))
	assert.Nil(t, m.OpenAlert("X", TypeOutOfStock))
	assert.Nil(t, m.OpenAlert("Y", TypeLowStock))

	m.Resolve(e)
	assert.Nil(t, m.OpenAlert("X", TypeLowStock))
}

func TestPurgeSerialDeletesHistory(t *testing.T) {
	m := NewManager(nil)

	m.Create(TypeItemAdded, 3, "added", "X")
	m.Create(TypeLowStock, 0, "low", "X")
	keep := m.Create(TypeItemAdded, 1, "added", "Y")

	m.PurgeSerial("X")

	assert.Empty(t, m.BySerial("X"))
	assert.Equal(t, []*Entry{keep}, m.Entries())
	assert.Empty(t, m.BySeverity(SeverityWarning))
}

func TestRestoreAdvancesSequencePastLoadedIDs(t *testing.T) {
	m := NewManager(nil)

	m.Restore([]*Entry{
		{ID: 4, Type: TypeItemAdded, Severity: SeverityNormal, ItemSerial: "X"},
		{ID: 9, Type: TypeOutOfStock, Severity: SeverityCritical, ItemSerial: "X", Solved: true},
	})

	assert.Len(t, m.Entries(), 2)
	assert.Len(t, m.BySerial("X"), 2)
	assert.Empty(t, m.BySeverity(SeverityCritical), "solved entries stay out of the buckets")

	next := m.Create(TypeItemAdded, 1, "added", "X")
	assert.Equal(t, int64(10), next.ID)
}

func TestListenerRetriedOnceAfterFailure(t *testing.T) {
	m := NewManager(nil)
	m.SetRetryDelay(time.Millisecond)

	calls := 0
	m.Subscribe(listenerFunc(func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	m.Create(TypeItemAdded, 1, "added", "X")
	assert.Equal(t, 2, calls)

	m.Create(TypeLowStock, 0, "low", "X")
	assert.Equal(t, 2, calls, "non-quantity entries do not notify listeners")
}

func TestObserverReceivesEntryCopy(t *testing.T) {
	m := NewManager(nil)

	got := make(chan Entry, 1)
	m.AddObserver(observerFunc(func(e Entry) { got <- e }))

	m.Create(TypeItemSold, -2, "sold", "X")

	select {
	case e := <-got:
		assert.Equal(t, TypeItemSold, e.Type)
		assert.Equal(t, -2, e.Amount)
	case <-time.After(time.Second):
		t.Fatal("observer was not notified")
	}
}

type applierFunc func(serial string, delta int)

func (f applierFunc) ApplyDelta(serial string, delta int) { f(serial, delta) }

type listenerFunc func() error

func (f listenerFunc) HandleQuantityChange() error { return f() }

type observerFunc func(e Entry)

func (f observerFunc) EntryLogged(e Entry) { f(e) }
