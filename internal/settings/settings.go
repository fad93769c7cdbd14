// Package settings persists durable key/value flags that must survive a restart
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
)

const (
	SyncLastPostProcessingFailed = "SyncLastPostProcessingFailed"
	SyncIsInitialised            = "SyncIsInitialised"
	SyncLastSuccess              = "SyncLastSuccess"
	SyncLastFailed               = "SyncLastFailed"
	ThisStoreID                  = "ThisStoreId"
)

// Store reads and writes settings rows. Writes do not go through change
// notifications; settings never sync
type Store struct {
	store *db.Store
}

func New(store *db.Store) *Store {
	return &Store{store: store}
}

// Get returns the stored value, or "" when the key was never set
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	err := s.store.View(ctx, func(tx *db.Tx) error {
		err := tx.DB().Where(map[string]any{"key": key}).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.ErrNotFound
		}
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts a value
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		return upsert(tx.DB(), key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func upsert(gdb *gorm.DB, key, value string) error {
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

// GetBool treats anything other than "true" as false
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}

// GetTime returns the zero time when the key is unset or unparsable
func (s *Store) GetTime(ctx context.Context, key string) (time.Time, error) {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) SetTime(ctx context.Context, key string, t time.Time) error {
	return s.Set(ctx, key, t.UTC().Format(time.RFC3339))
}
