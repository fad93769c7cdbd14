package service

import (
	"context"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

// Server is the central sync server as seen from this site
type Server interface {
	// Authenticate checks the site credentials
	Authenticate(ctx context.Context) error
	// RequestInitialDump asks the server to queue every record this site should hold
	RequestInitialDump(ctx context.Context) error
	// PendingCount is the number of records queued for this site
	PendingCount(ctx context.Context) (int, error)
	// Pull fetches up to limit queued records without removing them
	Pull(ctx context.Context, limit int) ([]models.SyncRecord, error)
	// Acknowledge removes pulled records from the server queue
	Acknowledge(ctx context.Context, syncIDs []string) error
	// Push delivers outgoing records
	Push(ctx context.Context, records []models.SyncRecord) error
}

// Outbox is the local queue of changes waiting to be pushed
type Outbox interface {
	Drain(ctx context.Context) ([]models.ChangeRecord, error)
	Acknowledge(ctx context.Context, ids ...string) error
}

// Reconciler repairs records after they arrive from the server
type Reconciler interface {
	ProcessRecordsInQueue(ctx context.Context) error
	ProcessAllRecords(ctx context.Context) error
}

// SettingsStore persists the sync flags
type SettingsStore interface {
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	SetTime(ctx context.Context, key string, t time.Time) error
}
