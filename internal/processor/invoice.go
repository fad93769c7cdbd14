package processor

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/internal/numbering"
)

// createCustomerInvoice builds the outgoing invoice that supplies a response requisition.
// Lines are allocated first-expiry-first-out; a shortfall becomes a line without a batch.
// Only a finalised invoice moves stock
func (p *Processor) createCustomerInvoice(tx *db.Tx, req *models.Requisition) (bool, error) {
	linked, err := hasCustomerInvoice(tx, req.ID)
	if err != nil || linked {
		return false, err
	}

	serial, err := p.numbers.GetNextNumber(tx, numbering.CustomerInvoiceSerial, p.storeID)
	if err != nil {
		return false, err
	}

	now := p.now()
	invoice := &models.Transaction{
		ID:                  models.NewID(),
		SerialNumber:        serial,
		Type:                models.TransactionCustomerInvoice,
		Status:              models.StatusNew,
		Mode:                "store",
		EntryDate:           now,
		Comment:             "From requisition " + req.SerialNumber,
		TheirRef:            req.RequesterReference,
		OtherPartyID:        req.OtherStoreNameID,
		EnteredByID:         req.EnteredByID,
		LinkedRequisitionID: req.ID,
	}
	if req.IsFinalised() {
		invoice.Status = models.StatusFinalised
		invoice.ConfirmDate = &now
	}
	if err := tx.Save(invoice); err != nil {
		return false, fmt.Errorf("failed to create customer invoice: %w", err)
	}

	var lines []*models.RequisitionItem
	if err := tx.Find(&lines, "requisition_id = ?", req.ID); err != nil {
		return false, fmt.Errorf("failed to read requisition lines: %w", err)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].SortIndex < lines[j].SortIndex })

	sortIndex := 0
	for _, line := range lines {
		if line.SuppliedQuantity <= 0 {
			continue
		}
		batches, err := p.allocate(tx, invoice, line, &sortIndex)
		if err != nil {
			return false, fmt.Errorf("failed to allocate item %s: %w", line.ItemID, err)
		}
		for _, tb := range batches {
			if err := tx.Save(tb); err != nil {
				return false, err
			}
		}
	}

	p.logger.Info("Created customer invoice for response requisition",
		"requisition_id", req.ID, "invoice_id", invoice.ID, "serial", serial, "status", invoice.Status)
	return true, nil
}

// allocate splits the supplied quantity of one requisition line over the item's batches
func (p *Processor) allocate(tx *db.Tx, invoice *models.Transaction, line *models.RequisitionItem, sortIndex *int) ([]*models.TransactionBatch, error) {
	var item models.Item
	if err := tx.Get(&item, line.ItemID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	var stock []*models.ItemBatch
	err := tx.DB().
		Where("item_id = ? AND number_of_packs > 0", line.ItemID).
		Order("expiry_date IS NULL, expiry_date, id").
		Find(&stock).Error
	if err != nil {
		return nil, err
	}

	remaining := line.SuppliedQuantity
	var out []*models.TransactionBatch
	for _, b := range stock {
		if remaining <= 0 {
			break
		}
		packSize := b.PackSize
		if packSize <= 0 {
			packSize = 1
		}
		packs := math.Min(b.NumberOfPacks, remaining/packSize)
		if packs <= 0 {
			continue
		}
		remaining -= packs * packSize

		*sortIndex++
		out = append(out, &models.TransactionBatch{
			ID:            models.NewID(),
			TransactionID: invoice.ID,
			ItemID:        line.ItemID,
			ItemBatchID:   b.ID,
			ItemName:      item.Name,
			Batch:         b.Batch,
			ExpiryDate:    b.ExpiryDate,
			PackSize:      packSize,
			NumberOfPacks: packs,
			CostPrice:     b.CostPrice,
			SellPrice:     b.SellPrice,
			SortIndex:     *sortIndex,
		})

		if invoice.IsFinalised() {
			b.NumberOfPacks -= packs
			if err := tx.Save(b); err != nil {
				return nil, fmt.Errorf("failed to issue stock from batch %s: %w", b.ID, err)
			}
		}
	}

	if remaining > 0 {
		*sortIndex++
		out = append(out, &models.TransactionBatch{
			ID:            models.NewID(),
			TransactionID: invoice.ID,
			ItemID:        line.ItemID,
			ItemName:      item.Name,
			PackSize:      1,
			NumberOfPacks: remaining,
			Note:          "Insufficient stock",
			SortIndex:     *sortIndex,
		})
	}
	return out, nil
}
