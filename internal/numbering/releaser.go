package numbering

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

// Releaser hands serial numbers back to the pool when a record holding one is
// deleted on this device
type Releaser struct {
	store     *db.Store
	allocator *Allocator
	storeID   string
	logger    *slog.Logger
	sub       *db.Subscription
}

func NewReleaser(store *db.Store, allocator *Allocator, storeID string, logger *slog.Logger) *Releaser {
	return &Releaser{
		store:     store,
		allocator: allocator,
		storeID:   storeID,
		logger:    logger.With("component", "numbering"),
	}
}

func (r *Releaser) Start() {
	if r.sub != nil {
		return
	}
	r.sub = r.store.Subscribe(r.onChange)
}

func (r *Releaser) Stop() {
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}
}

// onChange runs in the deleting transaction, so the number returns to the pool
// only if the delete commits. Server deletes are the server's business
func (r *Releaser) onChange(tx *db.Tx, c db.Change) error {
	if c.Origin != db.OriginLocal || c.Type != models.ChangeDelete {
		return nil
	}

	key, serial, ok := serialOf(c.Record)
	if !ok {
		return nil
	}

	err := r.allocator.ReleaseNumber(tx, key, r.storeID, serial)
	if errors.Is(err, ErrNumberNotIssued) {
		// issued by another store's sequence
		r.logger.Warn("Deleted record holds a number this store never issued",
			"record_type", c.RecordType,
			"record_id", c.RecordID,
			"sequence", key,
			"number", serial,
		)
		return nil
	}
	return err
}

// serialOf returns the sequence and serial a record draws from, when it holds a real one
func serialOf(rec models.Record) (key, serial string, ok bool) {
	switch v := rec.(type) {
	case *models.Requisition:
		key, serial = RequisitionSerial, v.SerialNumber
	case *models.Transaction:
		k, err := KeyForTransaction(v.Type)
		if err != nil {
			return "", "", false
		}
		key, serial = k, v.SerialNumber
	default:
		return "", "", false
	}

	if n, err := strconv.ParseInt(serial, 10, 64); err != nil || n < 1 {
		return "", "", false
	}
	return key, serial, true
}
