package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/db/dbtest"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

func TestWriteNotifiesWithOrigin(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	var seen []db.Change
	sub := store.Subscribe(func(_ *db.Tx, c db.Change) error {
		seen = append(seen, c)
		return nil
	})
	defer sub.Unsubscribe()

	item := &models.Item{ID: "I1", Code: "AMX", Name: "Amoxicillin"}
	require.NoError(t, store.Write(ctx, db.OriginSync, func(tx *db.Tx) error {
		return tx.Save(item)
	}))
	item.Name = "Amoxicillin 250mg"
	require.NoError(t, store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		return tx.Save(item)
	}))

	require.Len(t, seen, 2)
	assert.Equal(t, models.ChangeCreate, seen[0].Type)
	assert.Equal(t, db.OriginSync, seen[0].Origin)
	assert.Equal(t, models.ChangeUpdate, seen[1].Type)
	assert.Equal(t, db.OriginLocal, seen[1].Origin)
	assert.Equal(t, "I1", seen[1].RecordID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := dbtest.Open(t)

	calls := 0
	sub := store.Subscribe(func(_ *db.Tx, _ db.Change) error {
		calls++
		return nil
	})
	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, store.Write(context.Background(), db.OriginLocal, func(tx *db.Tx) error {
		return tx.Save(&models.Name{ID: "N1", Name: "Central"})
	}))
	assert.Zero(t, calls)
}

func TestListenerErrorRollsBack(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	boom := errors.New("boom")
	sub := store.Subscribe(func(_ *db.Tx, _ db.Change) error { return boom })

	err := store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		return tx.Save(&models.Item{ID: "I1"})
	})
	require.ErrorIs(t, err, boom)
	sub.Unsubscribe()

	err = store.View(ctx, func(tx *db.Tx) error {
		return tx.Get(&models.Item{}, "I1")
	})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestViewIsReadOnly(t *testing.T) {
	store := dbtest.Open(t)

	err := store.View(context.Background(), func(tx *db.Tx) error {
		return tx.Save(&models.Item{ID: "I1"})
	})
	assert.ErrorIs(t, err, db.ErrReadOnly)
}

func TestLoadToleratesDanglingRelations(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		return tx.Save(&models.TransactionBatch{ID: "TB1", TransactionID: "missing", ItemID: "I1", ItemBatchID: "gone"})
	}))

	require.NoError(t, store.View(ctx, func(tx *db.Tx) error {
		rec, err := tx.Load(models.RecordTransactionBatch, "TB1")
		require.NoError(t, err)
		tb := rec.(*models.TransactionBatch)
		assert.Nil(t, tb.Transaction)
		assert.Nil(t, tb.ItemBatch)
		assert.Equal(t, "", tb.ItemBatch.GetID())
		return nil
	}))
}

func TestDeleteByID(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	var deletes int
	sub := store.Subscribe(func(_ *db.Tx, c db.Change) error {
		if c.Type == models.ChangeDelete {
			deletes++
		}
		return nil
	})
	defer sub.Unsubscribe()

	require.NoError(t, store.Write(ctx, db.OriginSync, func(tx *db.Tx) error {
		if err := tx.Save(&models.Name{ID: "N1"}); err != nil {
			return err
		}
		if err := tx.DeleteByID(models.RecordName, "N1"); err != nil {
			return err
		}
		return tx.DeleteByID(models.RecordName, "never-existed")
	}))

	assert.Equal(t, 1, deletes)
	exists := true
	require.NoError(t, store.View(ctx, func(tx *db.Tx) error {
		var err error
		exists, err = tx.Exists(&models.Name{}, "id = ?", "N1")
		return err
	}))
	assert.False(t, exists)
}
