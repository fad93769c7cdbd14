package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/internal/settings"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
)

// Mode selects which records a run looks at
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// FlagStore persists the post-processing failure flag
type FlagStore interface {
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

// NumberAllocator hands out serial numbers inside the caller's write transaction
type NumberAllocator interface {
	GetNextNumber(tx *db.Tx, key, storeID string) (string, error)
}

// Processor repairs cross-record invariants after records arrive from the sync server:
// serial numbers for records created at another store, and the customer invoice that
// answers every response requisition
type Processor struct {
	store   *db.Store
	flags   FlagStore
	numbers NumberAllocator
	storeID string
	logger  *slog.Logger

	queue *Queue
	sub   *db.Subscription
	runMu sync.Mutex
	now   func() time.Time

	// afterClassify runs inside the transaction once every action is planned.
	// An error aborts the run
	afterClassify func() error
}

func New(store *db.Store, flags FlagStore, numbers NumberAllocator, storeID string, logger *slog.Logger) *Processor {
	return &Processor{
		store:   store,
		flags:   flags,
		numbers: numbers,
		storeID: storeID,
		logger:  logger.With("component", "processor"),
		queue:   NewQueue(),
		now:     time.Now,
	}
}

// Start begins collecting sync-originated changes
func (p *Processor) Start() {
	if p.sub == nil {
		p.sub = p.store.Subscribe(p.onChange)
	}
}

// Stop releases the change subscription
func (p *Processor) Stop() {
	if p.sub != nil {
		p.sub.Unsubscribe()
		p.sub = nil
	}
}

// QueueLength is the number of records awaiting an incremental run
func (p *Processor) QueueLength() int { return p.queue.Len() }

func (p *Processor) onChange(_ *db.Tx, c db.Change) error {
	if c.Origin != db.OriginSync || c.Type == models.ChangeDelete {
		return nil
	}
	switch c.RecordType {
	case models.RecordRequisition, models.RecordTransaction:
		p.queue.Add(c.RecordID, c.RecordType)
	}
	return nil
}

// ProcessRecordsInQueue repairs the records that sync touched since the last successful run
func (p *Processor) ProcessRecordsInQueue(ctx context.Context) error {
	return p.run(ctx, ModeIncremental)
}

// ProcessAllRecords rescans every requisition and transaction in the store
func (p *Processor) ProcessAllRecords(ctx context.Context) error {
	return p.run(ctx, ModeFull)
}

// RecoverIfNeeded runs a full rescan when the previous run did not complete.
// It reports whether a rescan was attempted
func (p *Processor) RecoverIfNeeded(ctx context.Context) (bool, error) {
	failed, err := p.flags.GetBool(ctx, settings.SyncLastPostProcessingFailed)
	if err != nil {
		return false, fmt.Errorf("failed to read post-processing flag: %w", err)
	}
	if !failed {
		return false, nil
	}
	p.logger.Warn("Previous post-processing did not complete, rescanning all records")
	return true, p.ProcessAllRecords(ctx)
}

func (p *Processor) run(ctx context.Context, mode Mode) (err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	snap := p.queue.Snapshot()
	snapshot := snap.Entries
	if mode == ModeIncremental && len(snapshot) == 0 {
		return nil
	}

	start := time.Now()
	l := p.logger.With("mode", mode, "queued", len(snapshot))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ReconciliationRuns.WithLabelValues(string(mode), status).Inc()
	}()

	if err := p.flags.SetBool(ctx, settings.SyncLastPostProcessingFailed, true); err != nil {
		return fmt.Errorf("failed to mark post-processing start: %w", err)
	}

	applied := make(map[string]int)
	err = p.store.Write(ctx, db.OriginLocal, func(tx *db.Tx) error {
		clear(applied)

		targets, err := p.targets(tx, mode, snapshot)
		if err != nil {
			return err
		}

		var plan []action
		for _, rec := range targets {
			actions, err := p.classify(tx, rec)
			if err != nil {
				return fmt.Errorf("failed to classify %s %s: %w", rec.RecordType(), rec.GetID(), err)
			}
			plan = append(plan, actions...)
		}

		if p.afterClassify != nil {
			if err := p.afterClassify(); err != nil {
				return err
			}
		}

		for _, a := range plan {
			done, err := a.run(tx)
			if err != nil {
				return fmt.Errorf("%s on %s failed: %w", a.kind, a.recordID, err)
			}
			if done {
				applied[a.kind]++
			}
		}
		return nil
	})
	if err != nil {
		l.Error("Post-processing failed, will rescan on next start", "error", err)
		return err
	}

	p.queue.Clear(snap)

	if err := p.flags.SetBool(ctx, settings.SyncLastPostProcessingFailed, false); err != nil {
		return fmt.Errorf("failed to clear post-processing flag: %w", err)
	}

	for kind, n := range applied {
		metrics.RepairActions.WithLabelValues(kind).Add(float64(n))
	}
	l.Info("Post-processing complete", "actions", applied, "duration", time.Since(start))
	return nil
}

// targets reads the current local copy of every record the run must classify
func (p *Processor) targets(tx *db.Tx, mode Mode, snapshot map[string]models.RecordType) ([]models.Record, error) {
	if mode == ModeFull {
		var requisitions []*models.Requisition
		if err := tx.Find(&requisitions, ""); err != nil {
			return nil, fmt.Errorf("failed to list requisitions: %w", err)
		}
		var transactions []*models.Transaction
		if err := tx.Find(&transactions, ""); err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}

		out := make([]models.Record, 0, len(requisitions)+len(transactions))
		for _, r := range requisitions {
			out = append(out, r)
		}
		for _, t := range transactions {
			out = append(out, t)
		}
		return out, nil
	}

	out := make([]models.Record, 0, len(snapshot))
	for _, id := range sortedIDs(snapshot) {
		rt := snapshot[id]
		rec, err := rt.New()
		if err != nil {
			return nil, err
		}
		err = tx.Get(rec, id)
		if errors.Is(err, db.ErrNotFound) {
			// deleted or rolled back since it was queued
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s %s: %w", rt, id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
