// Package outbox keeps the durable, ordered queue of local changes waiting to be pushed
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
)

type Outbox struct {
	store  *db.Store
	logger *slog.Logger
	sub    *db.Subscription
	now    func() time.Time
}

func New(store *db.Store, logger *slog.Logger) *Outbox {
	return &Outbox{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins recording every local write to a syncable table
func (o *Outbox) Start() {
	if o.sub != nil {
		return
	}
	o.sub = o.store.Subscribe(o.onChange)
}

// Stop releases the store subscription
func (o *Outbox) Stop() {
	if o.sub != nil {
		o.sub.Unsubscribe()
		o.sub = nil
	}
}

// onChange ignores writes that came from the server; echoing them back would loop forever
func (o *Outbox) onChange(tx *db.Tx, c db.Change) error {
	if c.Origin == db.OriginSync || !c.RecordType.IsSyncable() {
		return nil
	}
	return o.Enqueue(tx, c.RecordType, c.RecordID, c.Type)
}

// Enqueue records that recordID changed. A record has at most one queued entry:
// the previous one is replaced and the new entry moves to the back of the queue
func (o *Outbox) Enqueue(tx *db.Tx, rt models.RecordType, recordID string, changeType models.ChangeType) error {
	if !tx.Writable() {
		return db.ErrReadOnly
	}
	gdb := tx.DB()

	if err := gdb.Where("record_id = ?", recordID).Delete(&models.ChangeRecord{}).Error; err != nil {
		return fmt.Errorf("failed to replace queued change for %s: %w", recordID, err)
	}

	var tail int64
	if err := gdb.Model(&models.ChangeRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&tail).Error; err != nil {
		return fmt.Errorf("failed to read outbox tail: %w", err)
	}

	entry := models.ChangeRecord{
		ID:         models.NewID(),
		RecordType: rt,
		RecordID:   recordID,
		ChangeType: changeType,
		Timestamp:  o.now().UTC(),
		Sequence:   tail + 1,
	}
	if err := gdb.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to enqueue change for %s: %w", recordID, err)
	}

	o.logger.Debug("Queued outbound change", "record_type", rt, "record_id", recordID, "change", changeType)
	return nil
}

// Drain returns a snapshot of every queued change in delivery order
func (o *Outbox) Drain(ctx context.Context) ([]models.ChangeRecord, error) {
	var entries []models.ChangeRecord
	err := o.store.View(ctx, func(tx *db.Tx) error {
		return tx.DB().Order("sequence ASC").Find(&entries).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	metrics.OutboxBacklog.Set(float64(len(entries)))
	return entries, nil
}

// Acknowledge removes exactly the delivered snapshots. An entry that was
// re-enqueued after the snapshot has a new id and survives
func (o *Outbox) Acknowledge(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	var removed int64
	err := o.store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		res := tx.DB().Where("id IN ?", ids).Delete(&models.ChangeRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("failed to acknowledge %d changes: %w", len(ids), err)
	}

	if stale := int64(len(ids)) - removed; stale > 0 {
		o.logger.Debug("Acknowledged changes were superseded locally", "count", stale)
	}
	return nil
}

// Pending returns how many changes are waiting
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := o.store.View(ctx, func(tx *db.Tx) error {
		return tx.DB().Model(&models.ChangeRecord{}).Count(&n).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	metrics.OutboxBacklog.Set(float64(n))
	return n, nil
}
