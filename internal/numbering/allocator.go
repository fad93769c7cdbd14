// Package numbering issues store-scoped serial numbers.
// Every call runs inside the caller's write transaction so no other allocation can interleave
package numbering

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
)

// Sequence keys
const (
	RequisitionSerial         = "requisition_serial_number"
	CustomerInvoiceSerial     = "customer_invoice_serial_number"
	SupplierInvoiceSerial     = "supplier_invoice_serial_number"
	CustomerCreditSerial      = "customer_credit_serial_number"
	SupplierCreditSerial      = "supplier_credit_serial_number"
	InventoryAdjustmentSerial = "inventory_adjustment_serial_number"
	PrescriptionSerial        = "prescription_serial_number"
	StocktakeSerial           = "stocktake_serial_number"
)

var transactionKeys = map[string]string{
	models.TransactionCustomerInvoice:     CustomerInvoiceSerial,
	models.TransactionSupplierInvoice:     SupplierInvoiceSerial,
	models.TransactionCustomerCredit:      CustomerCreditSerial,
	models.TransactionSupplierCredit:      SupplierCreditSerial,
	models.TransactionInventoryAdjustment: InventoryAdjustmentSerial,
	models.TransactionPrescription:        PrescriptionSerial,
}

// KeyForTransaction returns the sequence a transaction type draws its serial numbers from
func KeyForTransaction(transactionType string) (string, error) {
	key, ok := transactionKeys[transactionType]
	if !ok {
		return "", fmt.Errorf("no serial number sequence for transaction type %q", transactionType)
	}
	return key, nil
}

// ErrNumberNotIssued is returned when releasing a number the sequence never handed out
var ErrNumberNotIssued = errors.New("number was never issued by this sequence")

type Allocator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Allocator {
	return &Allocator{logger: logger}
}

// GetNextNumber pops the smallest released number, or increments the sequence
func (a *Allocator) GetNextNumber(tx *db.Tx, key, storeID string) (string, error) {
	var reuse models.NumberToReuse
	err := tx.First(&reuse, "number ASC", "sequence_key = ? AND store_id = ?", key, storeID)
	switch {
	case err == nil:
		if err := tx.Delete(&reuse); err != nil {
			return "", fmt.Errorf("failed to consume reused number %d for %s: %w", reuse.Number, key, err)
		}
		metrics.NumbersAllocated.WithLabelValues("reuse").Inc()
		a.logger.Debug("Reissued released number", "sequence", key, "store_id", storeID, "number", reuse.Number)
		return strconv.FormatInt(reuse.Number, 10), nil
	case !errors.Is(err, db.ErrNotFound):
		return "", fmt.Errorf("failed to read reuse pool for %s: %w", key, err)
	}

	seq, err := a.sequence(tx, key, storeID)
	if err != nil {
		return "", err
	}

	seq.HighestNumberUsed++
	if err := tx.Save(seq); err != nil {
		return "", fmt.Errorf("failed to advance sequence %s: %w", key, err)
	}

	metrics.NumbersAllocated.WithLabelValues("increment").Inc()
	a.logger.Debug("Issued new number", "sequence", key, "store_id", storeID, "number", seq.HighestNumberUsed)
	return strconv.FormatInt(seq.HighestNumberUsed, 10), nil
}

// ReleaseNumber returns a number to the pool after the record holding it was deleted.
// The sequence never goes backwards: released numbers only come back through the pool
func (a *Allocator) ReleaseNumber(tx *db.Tx, key, storeID, number string) error {
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil || n < 1 {
		return fmt.Errorf("%w: %q", ErrNumberNotIssued, number)
	}

	seq, err := a.sequence(tx, key, storeID)
	if err != nil {
		return err
	}
	if n > seq.HighestNumberUsed {
		return fmt.Errorf("%w: %d above highest %d for %s", ErrNumberNotIssued, n, seq.HighestNumberUsed, key)
	}

	exists, err := tx.Exists(&models.NumberToReuse{}, "sequence_key = ? AND store_id = ? AND number = ?", key, storeID, n)
	if err != nil {
		return fmt.Errorf("failed to check reuse pool for %s: %w", key, err)
	}
	if exists {
		return nil
	}

	a.logger.Debug("Released number", "sequence", key, "store_id", storeID, "number", n)
	return tx.Save(&models.NumberToReuse{
		ID:          models.NewID(),
		SequenceKey: key,
		StoreID:     storeID,
		Number:      n,
	})
}

// sequence loads the row for (key, store) or returns a fresh one at zero
func (a *Allocator) sequence(tx *db.Tx, key, storeID string) (*models.NumberSequence, error) {
	var seq models.NumberSequence
	err := tx.First(&seq, "id", "sequence_key = ? AND store_id = ?", key, storeID)
	if errors.Is(err, db.ErrNotFound) {
		return &models.NumberSequence{
			ID:          models.NewID(),
			SequenceKey: key,
			StoreID:     storeID,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence %s: %w", key, err)
	}
	return &seq, nil
}
