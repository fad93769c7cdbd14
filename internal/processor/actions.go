package processor

import (
	"fmt"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/internal/numbering"
)

// Repair action kinds, also used as metric labels
const (
	ActionAllocateSerial        = "allocate_serial"
	ActionCreateCustomerInvoice = "create_customer_invoice"
	ActionPersist               = "persist"
)

// action is one planned repair. run re-checks its precondition against the
// current transaction state and reports whether it changed anything
type action struct {
	kind     string
	recordID string
	run      func(tx *db.Tx) (bool, error)
}

// repair tracks in-memory edits to one record so the final persist can skip clean records
type repair struct {
	record models.Record
	dirty  bool
}

func (p *Processor) classify(tx *db.Tx, rec models.Record) ([]action, error) {
	switch r := rec.(type) {
	case *models.Requisition:
		return p.classifyRequisition(tx, r)
	case *models.Transaction:
		return p.classifyTransaction(r)
	default:
		return nil, nil
	}
}

func (p *Processor) classifyRequisition(tx *db.Tx, r *models.Requisition) ([]action, error) {
	rep := &repair{record: r}
	var actions []action

	if r.SerialNumber == models.SentinelSerialNumber {
		actions = append(actions, p.allocateSerial(rep, &r.SerialNumber, numbering.RequisitionSerial))
	}

	if r.IsResponse() {
		linked, err := hasCustomerInvoice(tx, r.ID)
		if err != nil {
			return nil, err
		}
		if !linked {
			actions = append(actions, action{
				kind:     ActionCreateCustomerInvoice,
				recordID: r.ID,
				run: func(tx *db.Tx) (bool, error) {
					return p.createCustomerInvoice(tx, r)
				},
			})
		}
	}

	if len(actions) > 0 {
		actions = append(actions, persist(rep))
	}
	return actions, nil
}

func (p *Processor) classifyTransaction(t *models.Transaction) ([]action, error) {
	if t.SerialNumber != models.SentinelSerialNumber {
		return nil, nil
	}
	key, err := numbering.KeyForTransaction(t.Type)
	if err != nil {
		return nil, err
	}
	rep := &repair{record: t}
	return []action{
		p.allocateSerial(rep, &t.SerialNumber, key),
		persist(rep),
	}, nil
}

func (p *Processor) allocateSerial(rep *repair, serial *string, key string) action {
	return action{
		kind:     ActionAllocateSerial,
		recordID: rep.record.GetID(),
		run: func(tx *db.Tx) (bool, error) {
			if *serial != models.SentinelSerialNumber {
				return false, nil
			}
			n, err := p.numbers.GetNextNumber(tx, key, p.storeID)
			if err != nil {
				return false, err
			}
			*serial = n
			rep.dirty = true
			return true, nil
		},
	}
}

func persist(rep *repair) action {
	return action{
		kind:     ActionPersist,
		recordID: rep.record.GetID(),
		run: func(tx *db.Tx) (bool, error) {
			if !rep.dirty {
				return false, nil
			}
			if err := tx.Save(rep.record); err != nil {
				return false, fmt.Errorf("failed to persist repaired record: %w", err)
			}
			rep.dirty = false
			return true, nil
		},
	}
}

func hasCustomerInvoice(tx *db.Tx, requisitionID string) (bool, error) {
	return tx.Exists(&models.Transaction{},
		"linked_requisition_id = ? AND type = ?", requisitionID, models.TransactionCustomerInvoice)
}
