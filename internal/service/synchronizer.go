package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/db"
	"github.com/Guizzs26/msupply-sync/internal/mapper"
	"github.com/Guizzs26/msupply-sync/internal/models"
	"github.com/Guizzs26/msupply-sync/internal/settings"
	"github.com/Guizzs26/msupply-sync/pkg/metrics"
)

const integrateSavepoint = "integrate_record"

// SyncService runs the authenticate, pull, reconcile and push cycle against one server
type SyncService struct {
	store      *db.Store
	server     Server
	outbox     Outbox
	reconciler Reconciler
	settings   SettingsStore
	translator mapper.Translator
	batchSize  int
	logger     *slog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	status  Status
	now     func() time.Time
}

func NewSyncService(store *db.Store, server Server, ob Outbox, rec Reconciler, st SettingsStore, storeID string, batchSize int, l *slog.Logger) *SyncService {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncService{
		store:      store,
		server:     server,
		outbox:     ob,
		reconciler: rec,
		settings:   st,
		translator: mapper.Translator{StoreID: storeID},
		batchSize:  batchSize,
		logger:     l.With("component", "sync"),
		status:     Status{State: StateIdle},
		now:        time.Now,
	}
}

// Status returns a copy of the session state
func (s *SyncService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsSyncing reports whether a cycle is running
func (s *SyncService) IsSyncing() bool { return s.running.Load() }

// Sync runs one full cycle. A second caller gets ErrSyncInProgress
func (s *SyncService) Sync(ctx context.Context) (err error) {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.SyncCycles.WithLabelValues(status).Inc()
		metrics.SyncCycleDuration.Observe(time.Since(start).Seconds())
	}()

	s.update(func(st *Status) {
		st.IsSyncing = true
		st.ProgressCount, st.TotalCount = 0, 0
	})

	previousFailed, ferr := s.settings.GetBool(ctx, settings.SyncLastFailed)
	if ferr != nil {
		s.logger.Warn("Could not read last sync outcome, assuming success", "error", ferr)
	}

	if err := s.cycle(ctx, previousFailed); err != nil {
		s.fail(err)
		return err
	}

	finished := s.now()
	if err := s.settings.SetBool(ctx, settings.SyncLastFailed, false); err != nil {
		s.logger.Error("Failed to persist sync outcome", "error", err)
	}
	if err := s.settings.SetTime(ctx, settings.SyncLastSuccess, finished); err != nil {
		s.logger.Error("Failed to persist sync timestamp", "error", err)
	}

	s.update(func(st *Status) {
		st.State = StateIdle
		st.IsSyncing = false
		st.LastSyncTimestamp = finished
		st.LastErrorMessage = ""
	})
	s.logger.Info("Sync cycle complete", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *SyncService) cycle(ctx context.Context, fullRescan bool) error {
	s.setState(StateAuthenticating)
	if err := s.server.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	initialised, err := s.settings.GetBool(ctx, settings.SyncIsInitialised)
	if err != nil {
		return fmt.Errorf("failed to read initialisation flag: %w", err)
	}
	if !initialised {
		s.logger.Info("Site not initialised, requesting initial dump")
		if err := s.server.RequestInitialDump(ctx); err != nil {
			return fmt.Errorf("initial dump request failed: %w", err)
		}
	}

	if err := s.pull(ctx); err != nil {
		return err
	}

	if !initialised {
		if err := s.settings.SetBool(ctx, settings.SyncIsInitialised, true); err != nil {
			return fmt.Errorf("failed to mark site initialised: %w", err)
		}
	}

	s.reconcile(ctx, fullRescan)

	return s.push(ctx)
}

// fail moves the session through ERROR back to IDLE, keeping the message
func (s *SyncService) fail(cause error) {
	s.logger.Error("Sync cycle failed", "error", cause)
	s.update(func(st *Status) {
		st.State = StateError
		st.LastErrorMessage = cause.Error()
	})

	// the caller's context may be the reason we failed
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.settings.SetBool(ctx, settings.SyncLastFailed, true); err != nil {
		s.logger.Error("CRITICAL: Failed to persist sync failure flag", "error", err)
	}

	s.update(func(st *Status) {
		st.State = StateIdle
		st.IsSyncing = false
	})
}

func (s *SyncService) reconcile(ctx context.Context, fullRescan bool) {
	var err error
	if fullRescan {
		s.logger.Info("Previous sync failed, reconciling all records")
		err = s.reconciler.ProcessAllRecords(ctx)
	} else {
		err = s.reconciler.ProcessRecordsInQueue(ctx)
	}
	if err != nil {
		s.logger.Error("Post-sync reconciliation failed", "error", err)
	}
}

func (s *SyncService) pull(ctx context.Context) error {
	s.setState(StatePulling)

	total, err := s.server.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queued records: %w", err)
	}
	s.setProgress(0, total)

	done := 0
	for done < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.server.Pull(ctx, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to pull records: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := s.integrate(ctx, batch); err != nil {
			return fmt.Errorf("failed to integrate batch: %w", err)
		}

		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.SyncID
		}
		if err := s.server.Acknowledge(ctx, ids); err != nil {
			return fmt.Errorf("failed to acknowledge pulled records: %w", err)
		}

		done += len(batch)
		s.setProgress(done, total)
	}

	s.logger.Info("Pull complete", "records", done)
	return nil
}

// integrate applies one pulled batch in a single sync-origin transaction.
// A record that cannot be parsed or stored is skipped; the rest of the batch still lands
func (s *SyncService) integrate(ctx context.Context, batch []models.SyncRecord) error {
	return s.store.Write(ctx, db.OriginSync, func(tx *db.Tx) error {
		for _, r := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := tx.DB().SavePoint(integrateSavepoint).Error; err != nil {
				return err
			}

			err := s.integrateRecord(tx, r)
			if err == nil {
				metrics.RecordsPulled.WithLabelValues("integrated", r.RecordType).Inc()
				continue
			}

			if rbErr := tx.DB().RollbackTo(integrateSavepoint).Error; rbErr != nil {
				return fmt.Errorf("failed to roll back record %s: %w", r.RecordID, rbErr)
			}
			metrics.RecordsPulled.WithLabelValues("skipped", r.RecordType).Inc()
			s.logger.Warn("Skipping inbound record",
				"sync_id", r.SyncID,
				"table", r.RecordType,
				"record_id", r.RecordID,
				"error", err,
			)
		}
		return nil
	})
}

func (s *SyncService) integrateRecord(tx *db.Tx, r models.SyncRecord) error {
	rt, ok := models.RecordTypeForTable(r.RecordType)
	if !ok {
		return &mapper.TranslationError{
			Op:       "parse",
			RecordID: r.RecordID,
			StoreID:  r.StoreID,
			Err:      fmt.Errorf("%w: table %q", mapper.ErrUnsupportedRecordType, r.RecordType),
		}
	}

	changeType, err := mapper.ChangeTypeFromCode(r.SyncType)
	if err != nil {
		return &mapper.TranslationError{Op: "parse", RecordType: rt, RecordID: r.RecordID, StoreID: r.StoreID, Err: err}
	}

	if changeType == models.ChangeDelete {
		return tx.DeleteByID(rt, r.RecordID)
	}

	rec, err := s.translator.Parse(rt, mapper.Wire(r.Data))
	if err != nil {
		return err
	}
	return tx.Save(rec)
}

func (s *SyncService) push(ctx context.Context) error {
	s.setState(StatePushing)

	entries, err := s.outbox.Drain(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}
	s.setProgress(0, len(entries))

	for start := 0; start < len(entries); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+s.batchSize, len(entries))
		records, settled, err := s.prepare(ctx, entries[start:end])
		if err != nil {
			return err
		}

		if len(records) > 0 {
			if err := s.server.Push(ctx, records); err != nil {
				return fmt.Errorf("failed to push records: %w", err)
			}
		}
		if len(settled) > 0 {
			if err := s.outbox.Acknowledge(ctx, settled...); err != nil {
				return fmt.Errorf("failed to acknowledge outbox: %w", err)
			}
		}

		for _, r := range records {
			metrics.RecordsPushed.WithLabelValues("sent", r.RecordType).Inc()
		}
		s.setProgress(end, len(entries))
	}

	s.logger.Info("Push complete", "records", len(entries))
	return nil
}

// prepare translates a chunk of outbox entries. It returns the envelopes to send and
// the outbox ids that are settled once they are sent. Records that fail translation
// stay in the outbox
func (s *SyncService) prepare(ctx context.Context, entries []models.ChangeRecord) ([]models.SyncRecord, []string, error) {
	records := make([]models.SyncRecord, 0, len(entries))
	settled := make([]string, 0, len(entries))

	err := s.store.View(ctx, func(tx *db.Tx) error {
		for _, e := range entries {
			var data mapper.Wire
			if e.ChangeType != models.ChangeDelete {
				rec, err := tx.Load(e.RecordType, e.RecordID)
				if errors.Is(err, db.ErrNotFound) {
					// gone locally and its delete is queued separately
					settled = append(settled, e.ID)
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to load %s %s: %w", e.RecordType, e.RecordID, err)
				}
				if data, err = s.translator.Translate(e.RecordType, rec); err != nil {
					s.skip(e, err)
					continue
				}
			}

			env, err := s.translator.Envelope(e, data)
			if err != nil {
				s.skip(e, err)
				continue
			}
			records = append(records, env)
			settled = append(settled, e.ID)
		}
		return nil
	})
	return records, settled, err
}

func (s *SyncService) skip(e models.ChangeRecord, err error) {
	metrics.RecordsPushed.WithLabelValues("skipped", e.RecordType.LegacyTable()).Inc()
	s.logger.Warn("Skipping outbound record",
		"outbox_id", e.ID,
		"record_type", e.RecordType,
		"record_id", e.RecordID,
		"error", err,
	)
}

func (s *SyncService) setState(state State) {
	s.update(func(st *Status) { st.State = state })
}

func (s *SyncService) setProgress(done, total int) {
	s.update(func(st *Status) {
		st.ProgressCount = done
		st.TotalCount = total
	})
}

func (s *SyncService) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}
