package numbering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/db/dbtest"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

func newReleaser(t *testing.T) (*db.Store, *Allocator) {
	t.Helper()
	store := dbtest.Open(t)
	a := New(dbtest.Logger())
	r := NewReleaser(store, a, store1, dbtest.Logger())
	r.Start()
	t.Cleanup(r.Stop)
	return store, a
}

func createRequisition(t *testing.T, store *db.Store, a *Allocator, id string) *models.Requisition {
	t.Helper()
	req := &models.Requisition{ID: id, Type: models.RequisitionRequest}
	write(t, store, func(tx *db.Tx) error {
		n, err := a.GetNextNumber(tx, RequisitionSerial, store1)
		if err != nil {
			return err
		}
		req.SerialNumber = n
		return tx.Save(req)
	})
	return req
}

func TestDeletedRequisitionNumberIsReused(t *testing.T) {
	store, a := newReleaser(t)

	createRequisition(t, store, a, "R1")
	second := createRequisition(t, store, a, "R2")
	createRequisition(t, store, a, "R3")
	require.Equal(t, "2", second.SerialNumber)

	write(t, store, func(tx *db.Tx) error { return tx.DeleteByID(models.RecordRequisition, "R2") })
	assert.Equal(t, []int64{2}, pool(t, store, RequisitionSerial))

	again := createRequisition(t, store, a, "R4")
	assert.Equal(t, "2", again.SerialNumber)
	assert.Equal(t, "4", createRequisition(t, store, a, "R5").SerialNumber)
}

func TestDeletedTransactionReleasesIntoItsSequence(t *testing.T) {
	store, a := newReleaser(t)

	write(t, store, func(tx *db.Tx) error {
		n, err := a.GetNextNumber(tx, SupplierCreditSerial, store1)
		if err != nil {
			return err
		}
		return tx.Save(&models.Transaction{ID: "T1", SerialNumber: n, Type: models.TransactionSupplierCredit})
	})
	write(t, store, func(tx *db.Tx) error { return tx.DeleteByID(models.RecordTransaction, "T1") })

	assert.Equal(t, []int64{1}, pool(t, store, SupplierCreditSerial))
	assert.Empty(t, pool(t, store, CustomerInvoiceSerial))
}

func TestReleaseIgnoresDeletesItDoesNotOwn(t *testing.T) {
	tests := []struct {
		name   string
		origin db.Origin
		rec    *models.Requisition
	}{
		{"server delete", db.OriginSync, &models.Requisition{ID: "R1", SerialNumber: "1"}},
		{"sentinel serial", db.OriginLocal, &models.Requisition{ID: "R1", SerialNumber: models.SentinelSerialNumber}},
		{"number from another store", db.OriginLocal, &models.Requisition{ID: "R1", SerialNumber: "90"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, a := newReleaser(t)
			next(t, store, a, RequisitionSerial)

			require.NoError(t, store.Write(context.Background(), db.OriginSync, func(tx *db.Tx) error {
				return tx.Save(tt.rec)
			}))
			require.NoError(t, store.Write(context.Background(), tt.origin, func(tx *db.Tx) error {
				return tx.DeleteByID(models.RecordRequisition, tt.rec.ID)
			}))

			assert.Empty(t, pool(t, store, RequisitionSerial))
			assert.Equal(t, int64(1), highest(t, store, RequisitionSerial))
		})
	}
}

func TestReleaseStopsAfterUnsubscribe(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())
	r := NewReleaser(store, a, store1, dbtest.Logger())
	r.Start()
	r.Stop()

	createRequisition(t, store, a, "R1")
	write(t, store, func(tx *db.Tx) error { return tx.DeleteByID(models.RecordRequisition, "R1") })
	assert.Empty(t, pool(t, store, RequisitionSerial))
}
