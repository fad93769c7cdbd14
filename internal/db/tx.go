package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

// Tx is a handle on the store, either read-only (View) or inside the write transaction (Write)
type Tx struct {
	gdb      *gorm.DB
	store    *Store
	origin   Origin
	writable bool
}

// Origin reports who opened the write transaction
func (tx *Tx) Origin() Origin { return tx.origin }

// Writable reports whether tx belongs to a write transaction
func (tx *Tx) Writable() bool { return tx.writable }

// DB exposes the underlying GORM handle for queries the helpers below do not cover.
// Writes made through it bypass change notifications
func (tx *Tx) DB() *gorm.DB { return tx.gdb }

// Get loads a single row by primary key into dst
func (tx *Tx) Get(dst any, id string) error {
	err := tx.gdb.Where("id = ?", id).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// First loads the first row matching query under the given ordering
func (tx *Tx) First(dst any, order string, query string, args ...any) error {
	err := tx.gdb.Where(query, args...).Order(order).Take(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Find loads all rows matching query into dst, ordered by primary key.
// An empty query selects every row
func (tx *Tx) Find(dst any, query string, args ...any) error {
	q := tx.gdb.Order("id")
	if query != "" {
		q = q.Where(query, args...)
	}
	return q.Find(dst).Error
}

// Exists reports whether any row of model matches query
func (tx *Tx) Exists(model any, query string, args ...any) (bool, error) {
	var n int64
	if err := tx.gdb.Model(model).Where(query, args...).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Load fetches a record by type and id with the relations the translator needs.
// Dangling relations are left nil
func (tx *Tx) Load(rt models.RecordType, id string) (models.Record, error) {
	rec, err := rt.New()
	if err != nil {
		return nil, err
	}
	q := tx.gdb
	for _, rel := range rt.Preloads() {
		q = q.Preload(rel)
	}
	err = q.Where("id = ?", id).Take(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save inserts or updates rec and notifies listeners.
// Associations are never written through the parent
func (tx *Tx) Save(rec models.Record) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if rec.GetID() == "" {
		return fmt.Errorf("cannot save %s without an id", rec.RecordType())
	}

	exists, err := tx.Exists(rec, "id = ?", rec.GetID())
	if err != nil {
		return fmt.Errorf("failed to check %s %s: %w", rec.RecordType(), rec.GetID(), err)
	}

	changeType := models.ChangeCreate
	if exists {
		changeType = models.ChangeUpdate
		err = tx.gdb.Omit(clause.Associations).Save(rec).Error
	} else {
		err = tx.gdb.Omit(clause.Associations).Create(rec).Error
	}
	if err != nil {
		return fmt.Errorf("failed to %s %s %s: %w", changeType, rec.RecordType(), rec.GetID(), err)
	}

	return tx.store.notify(tx, Change{
		Type:       changeType,
		RecordType: rec.RecordType(),
		RecordID:   rec.GetID(),
		Record:     rec,
		Origin:     tx.origin,
	})
}

// Delete removes rec and notifies listeners. Deleting a missing row is not an error
func (tx *Tx) Delete(rec models.Record) error {
	if !tx.writable {
		return ErrReadOnly
	}

	res := tx.gdb.Where("id = ?", rec.GetID()).Delete(rec)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s %s: %w", rec.RecordType(), rec.GetID(), res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	return tx.store.notify(tx, Change{
		Type:       models.ChangeDelete,
		RecordType: rec.RecordType(),
		RecordID:   rec.GetID(),
		Record:     rec,
		Origin:     tx.origin,
	})
}

// DeleteByID removes the record of type rt with the given id, if present
func (tx *Tx) DeleteByID(rt models.RecordType, id string) error {
	rec, err := rt.New()
	if err != nil {
		return err
	}
	if err := tx.Get(rec, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return tx.Delete(rec)
}
