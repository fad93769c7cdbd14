package numbering

import (
	"context"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/db/dbtest"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

const store1 = "STORE1"

func write(t *testing.T, store *db.Store, fn func(tx *db.Tx) error) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), db.OriginLocal, fn))
}

func next(t *testing.T, store *db.Store, a *Allocator, key string) string {
	t.Helper()
	var n string
	write(t, store, func(tx *db.Tx) error {
		var err error
		n, err = a.GetNextNumber(tx, key, store1)
		return err
	})
	return n
}

func release(store *db.Store, a *Allocator, key, number string) error {
	return store.Write(context.Background(), db.OriginLocal, func(tx *db.Tx) error {
		return a.ReleaseNumber(tx, key, store1, number)
	})
}

func highest(t *testing.T, store *db.Store, key string) int64 {
	t.Helper()
	var seq models.NumberSequence
	require.NoError(t, store.View(context.Background(), func(tx *db.Tx) error {
		return tx.First(&seq, "id", "sequence_key = ? AND store_id = ?", key, store1)
	}))
	return seq.HighestNumberUsed
}

func pool(t *testing.T, store *db.Store, key string) []int64 {
	t.Helper()
	var rows []models.NumberToReuse
	require.NoError(t, store.View(context.Background(), func(tx *db.Tx) error {
		return tx.Find(&rows, "sequence_key = ?", key)
	}))
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Number)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestFreshSequenceStartsAtOne(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())

	assert.Equal(t, "1", next(t, store, a, RequisitionSerial))
	assert.Equal(t, "2", next(t, store, a, RequisitionSerial))
	assert.Equal(t, "1", next(t, store, a, CustomerInvoiceSerial))
}

func TestSequencesAreScopedByStore(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())

	next(t, store, a, StocktakeSerial)
	var other string
	write(t, store, func(tx *db.Tx) error {
		var err error
		other, err = a.GetNextNumber(tx, StocktakeSerial, "STORE2")
		return err
	})
	assert.Equal(t, "1", other)
}

func TestNumbersAreUniqueAcrossReleases(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())

	issued := map[string]bool{}
	for i := 0; i < 5; i++ {
		issued[next(t, store, a, CustomerInvoiceSerial)] = true
	}

	require.NoError(t, release(store, a, CustomerInvoiceSerial, "2"))
	delete(issued, "2")
	require.NoError(t, release(store, a, CustomerInvoiceSerial, "4"))
	delete(issued, "4")

	for i := 0; i < 4; i++ {
		n := next(t, store, a, CustomerInvoiceSerial)
		assert.False(t, issued[n], "number %s issued twice", n)
		issued[n] = true
	}
	assert.Len(t, issued, 7)
}

func TestReusedNumbersComeSmallestFirst(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())

	for i := 0; i < 5; i++ {
		next(t, store, a, RequisitionSerial)
	}
	require.NoError(t, release(store, a, RequisitionSerial, "3"))
	require.NoError(t, release(store, a, RequisitionSerial, "2"))

	assert.Equal(t, "2", next(t, store, a, RequisitionSerial))
	assert.Equal(t, "3", next(t, store, a, RequisitionSerial))
	assert.Equal(t, "6", next(t, store, a, RequisitionSerial))
}

func TestReleaseRules(t *testing.T) {
	t.Run("above highest is rejected", func(t *testing.T) {
		store := dbtest.Open(t)
		a := New(dbtest.Logger())
		next(t, store, a, RequisitionSerial)

		assert.ErrorIs(t, release(store, a, RequisitionSerial, "2"), ErrNumberNotIssued)
	})

	t.Run("zero and garbage are rejected", func(t *testing.T) {
		store := dbtest.Open(t)
		a := New(dbtest.Logger())
		next(t, store, a, RequisitionSerial)

		assert.ErrorIs(t, release(store, a, RequisitionSerial, "0"), ErrNumberNotIssued)
		assert.ErrorIs(t, release(store, a, RequisitionSerial, "-1"), ErrNumberNotIssued)
		assert.ErrorIs(t, release(store, a, RequisitionSerial, "abc"), ErrNumberNotIssued)
	})

	t.Run("releasing highest keeps the sequence", func(t *testing.T) {
		store := dbtest.Open(t)
		a := New(dbtest.Logger())
		for i := 0; i < 3; i++ {
			next(t, store, a, RequisitionSerial)
		}

		require.NoError(t, release(store, a, RequisitionSerial, "3"))
		assert.Equal(t, int64(3), highest(t, store, RequisitionSerial))
		assert.Equal(t, []int64{3}, pool(t, store, RequisitionSerial))

		// 3 comes back only through the pool, then the increment moves past it
		assert.Equal(t, "3", next(t, store, a, RequisitionSerial))
		assert.Empty(t, pool(t, store, RequisitionSerial))
		assert.Equal(t, "4", next(t, store, a, RequisitionSerial))
	})

	t.Run("increment never reissues a released highest", func(t *testing.T) {
		store := dbtest.Open(t)
		a := New(dbtest.Logger())
		for i := 0; i < 5; i++ {
			next(t, store, a, RequisitionSerial)
		}

		for _, n := range []string{"2", "4", "3", "5"} {
			require.NoError(t, release(store, a, RequisitionSerial, n))
		}
		assert.Equal(t, []int64{2, 3, 4, 5}, pool(t, store, RequisitionSerial))
		assert.Equal(t, int64(5), highest(t, store, RequisitionSerial))

		for _, want := range []string{"2", "3", "4", "5", "6"} {
			assert.Equal(t, want, next(t, store, a, RequisitionSerial))
		}
	})

	t.Run("double release is ignored", func(t *testing.T) {
		store := dbtest.Open(t)
		a := New(dbtest.Logger())
		for i := 0; i < 3; i++ {
			next(t, store, a, RequisitionSerial)
		}

		require.NoError(t, release(store, a, RequisitionSerial, "1"))
		require.NoError(t, release(store, a, RequisitionSerial, "1"))
		assert.Equal(t, []int64{1}, pool(t, store, RequisitionSerial))
	})
}

func TestKeyForTransaction(t *testing.T) {
	key, err := KeyForTransaction(models.TransactionSupplierCredit)
	require.NoError(t, err)
	assert.Equal(t, SupplierCreditSerial, key)

	_, err = KeyForTransaction("stocktake")
	assert.Error(t, err)
}

func TestAllocatedNumbersAreDecimalStrings(t *testing.T) {
	store := dbtest.Open(t)
	a := New(dbtest.Logger())

	for i := 1; i <= 12; i++ {
		assert.Equal(t, strconv.Itoa(i), next(t, store, a, PrescriptionSerial))
	}
}
