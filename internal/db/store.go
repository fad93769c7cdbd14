// Package db is the embedded local store: a single-writer SQLite database
// accessed through GORM, with change notifications tagged by origin.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrReadOnly = errors.New("write attempted outside a write transaction")
)

// Origin tells listeners who caused a write
type Origin int

const (
	OriginLocal Origin = iota
	OriginSync
)

func (o Origin) String() string {
	if o == OriginSync {
		return "sync"
	}
	return "local"
}

// Change is delivered to listeners for every record written inside a write transaction
type Change struct {
	Type       models.ChangeType
	RecordType models.RecordType
	RecordID   string
	Record     models.Record
	Origin     Origin
}

// Listener runs synchronously inside the write transaction that produced the change.
// Returning an error aborts that transaction
type Listener func(tx *Tx, c Change) error

// Store owns the database handle and serialises writers
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	writeMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[uint64]Listener
	nextSub atomic.Uint64
}

// Open opens (or creates) the SQLite file at path and migrates the schema
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("database directory unavailable: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormLogger(logger),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}

	if err := migrate(gdb); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("Local store ready", "path", path)

	return &Store{
		db:     gdb,
		logger: logger,
		subs:   make(map[uint64]Listener),
	}, nil
}

func migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.Item{},
		&models.Name{},
		&models.ItemBatch{},
		&models.NumberSequence{},
		&models.NumberToReuse{},
		&models.Requisition{},
		&models.RequisitionItem{},
		&models.Transaction{},
		&models.TransactionBatch{},
		&models.Stocktake{},
		&models.StocktakeBatch{},
		&models.ChangeRecord{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func gormLogger(l *slog.Logger) logger.Interface {
	return logger.New(
		slog.NewLogLogger(l.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// View runs fn against a read-only handle. Writes through it fail with ErrReadOnly
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(&Tx{gdb: s.db.WithContext(ctx), store: s})
}

// Write runs fn inside the single exclusive write transaction.
// Either everything fn wrote commits, or nothing does
func (s *Store) Write(ctx context.Context, origin Origin, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&Tx{gdb: gtx, store: s, origin: origin, writable: true})
	})
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Subscribe registers a listener for changes made inside write transactions
func (s *Store) Subscribe(fn Listener) *Subscription {
	id := s.nextSub.Add(1)

	s.subsMu.Lock()
	s.subs[id] = fn
	s.subsMu.Unlock()

	return &Subscription{store: s, id: id}
}

// Unsubscribe stops delivery. It is safe to call more than once
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.subsMu.Lock()
		delete(sub.store.subs, sub.id)
		sub.store.subsMu.Unlock()
	})
}

func (s *Store) notify(tx *Tx, c Change) error {
	s.subsMu.RLock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.subsMu.RUnlock()

	for _, l := range listeners {
		if err := l(tx, c); err != nil {
			return fmt.Errorf("change listener rejected %s %s: %w", c.RecordType, c.RecordID, err)
		}
	}
	return nil
}

// Close gracefully shuts down the connection pool
func (s *Store) Close() error {
	s.logger.Info("Closing local store")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
