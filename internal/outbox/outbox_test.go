package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/db/dbtest"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

func newOutbox(t *testing.T) (*db.Store, *Outbox) {
	t.Helper()
	store := dbtest.Open(t)
	ob := New(store, dbtest.Logger())
	ob.Start()
	t.Cleanup(ob.Stop)
	return store, ob
}

func save(t *testing.T, store *db.Store, origin db.Origin, rec models.Record) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), origin, func(tx *db.Tx) error {
		return tx.Save(rec)
	}))
}

func TestRepeatedChangesCollapseToOneEntry(t *testing.T) {
	store, ob := newOutbox(t)
	ctx := context.Background()

	req := &models.Requisition{ID: "R1", SerialNumber: "1"}
	save(t, store, db.OriginLocal, req)
	for _, comment := range []string{"a", "b", "c"} {
		req.Comment = comment
		save(t, store, db.OriginLocal, req)
	}

	entries, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "R1", entries[0].RecordID)
	assert.Equal(t, models.RecordRequisition, entries[0].RecordType)
	assert.Equal(t, models.ChangeUpdate, entries[0].ChangeType)
}

func TestReenqueueMovesToTail(t *testing.T) {
	store, ob := newOutbox(t)
	ctx := context.Background()

	a := &models.Item{ID: "A"}
	save(t, store, db.OriginLocal, a)
	save(t, store, db.OriginLocal, &models.Item{ID: "B"})
	a.Name = "changed"
	save(t, store, db.OriginLocal, a)

	entries, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "B", entries[0].RecordID)
	assert.Equal(t, "A", entries[1].RecordID)
	assert.Less(t, entries[0].Sequence, entries[1].Sequence)
}

func TestSyncOriginIsNotEnqueued(t *testing.T) {
	store, ob := newOutbox(t)

	save(t, store, db.OriginSync, &models.Item{ID: "I1"})

	n, err := ob.Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAcknowledgeOldSnapshotKeepsNewerChange(t *testing.T) {
	store, ob := newOutbox(t)
	ctx := context.Background()

	rec := &models.Transaction{ID: "T1", SerialNumber: "4", Type: models.TransactionCustomerInvoice}
	save(t, store, db.OriginLocal, rec)

	snapshot, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// modified while the push was in flight
	rec.Comment = "edited"
	save(t, store, db.OriginLocal, rec)

	require.NoError(t, ob.Acknowledge(ctx, snapshot[0].ID))

	remaining, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "T1", remaining[0].RecordID)
	assert.NotEqual(t, snapshot[0].ID, remaining[0].ID)
}

func TestAcknowledgeRemovesDelivered(t *testing.T) {
	store, ob := newOutbox(t)
	ctx := context.Background()

	save(t, store, db.OriginLocal, &models.Name{ID: "N1"})
	save(t, store, db.OriginLocal, &models.Name{ID: "N2"})

	entries, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, ob.Acknowledge(ctx, entries[0].ID, entries[1].ID))

	n, err := ob.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteReplacesQueuedCreate(t *testing.T) {
	store, ob := newOutbox(t)
	ctx := context.Background()

	item := &models.Item{ID: "I1"}
	save(t, store, db.OriginLocal, item)
	require.NoError(t, store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		return tx.Delete(item)
	}))

	entries, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ChangeDelete, entries[0].ChangeType)
}
