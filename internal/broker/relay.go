package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guizzs26/msupply-sync/internal/models"
)

// PushRoutingKey is where this site publishes outgoing records
func PushRoutingKey(siteID string) string { return fmt.Sprintf("site.%s.push", siteID) }

// InboundRoutingKey is where the relay publishes records for this site
func InboundRoutingKey(siteID string) string { return fmt.Sprintf("site.%s.inbound", siteID) }

// InboundQueue holds records waiting for this site
func InboundQueue(siteID string) string { return fmt.Sprintf("msupply.site.%s.inbound", siteID) }

func initialDumpRoutingKey(siteID string) string { return fmt.Sprintf("site.%s.initial_dump", siteID) }

type initialDumpRequest struct {
	SiteID  string `json:"SiteID"`
	StoreID string `json:"StoreID"`
}

// Channel is the slice of the RabbitMQ client the relay drives
type Channel interface {
	Publish(ctx context.Context, routingKey, messageID string, v any) (Confirmation, error)
	BindQueue(name, routingKey string) error
	QueueDepth(name string) (int, error)
	Get(queue string) (amqp.Delivery, bool, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Relay exchanges sync records with the central server through a RabbitMQ relay.
// Pulled deliveries stay unacked on the broker until Acknowledge, so a crash
// between pull and integrate redelivers them
type Relay struct {
	client  Channel
	siteID  string
	storeID string
	queue   string
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]uint64 // SyncID -> delivery tag
}

// NewRelay declares and binds the inbound queue for siteID
func NewRelay(client Channel, siteID, storeID string, l *slog.Logger) (*Relay, error) {
	queue := InboundQueue(siteID)

	if err := client.BindQueue(queue, InboundRoutingKey(siteID)); err != nil {
		return nil, err
	}

	return &Relay{
		client:  client,
		siteID:  siteID,
		storeID: storeID,
		queue:   queue,
		logger:  l.With("component", "relay", "queue", queue),
		pending: make(map[string]uint64),
	}, nil
}

func (r *Relay) Authenticate(ctx context.Context) error {
	if _, err := r.client.QueueDepth(r.queue); err != nil {
		return fmt.Errorf("inbound queue unavailable: %w", err)
	}
	return nil
}

func (r *Relay) RequestInitialDump(ctx context.Context) error {
	confirm, err := r.client.Publish(ctx, initialDumpRoutingKey(r.siteID), models.NewID(),
		initialDumpRequest{SiteID: r.siteID, StoreID: r.storeID})
	if err != nil {
		return err
	}
	return confirm.Wait(ctx)
}

// PendingCount is the number of ready messages. Deliveries left unacked by an
// earlier failed cycle are handed back to the queue first
func (r *Relay) PendingCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requeuePending(); err != nil {
		return 0, err
	}
	return r.client.QueueDepth(r.queue)
}

func (r *Relay) Pull(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// every pulled batch is acknowledged before the next pull; anything still
	// pending belongs to a cycle that gave up
	if err := r.requeuePending(); err != nil {
		return nil, err
	}

	out := make([]models.SyncRecord, 0, limit)
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, ok, err := r.client.Get(r.queue)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		var rec models.SyncRecord
		if err := json.Unmarshal(d.Body, &rec); err != nil || rec.SyncID == "" {
			r.logger.Error("Dropping malformed inbound message", "message_id", d.MessageId, "error", err)
			if err := r.client.Nack(d.DeliveryTag, false); err != nil {
				return nil, fmt.Errorf("failed to reject malformed message: %w", err)
			}
			continue
		}

		if tag, dup := r.pending[rec.SyncID]; dup {
			// same record published twice; settle the older copy
			if err := r.client.Ack(tag); err != nil {
				return nil, fmt.Errorf("failed to ack duplicate %s: %w", rec.SyncID, err)
			}
		} else {
			out = append(out, rec)
		}
		r.pending[rec.SyncID] = d.DeliveryTag
	}
	return out, nil
}

// requeuePending returns unacknowledged deliveries to the broker. Callers hold r.mu
func (r *Relay) requeuePending() error {
	if len(r.pending) == 0 {
		return nil
	}
	r.logger.Warn("Requeueing deliveries left by an unfinished cycle", "count", len(r.pending))
	for id, tag := range r.pending {
		if err := r.client.Nack(tag, true); err != nil {
			return fmt.Errorf("failed to requeue %s: %w", id, err)
		}
		delete(r.pending, id)
	}
	return nil
}

func (r *Relay) Acknowledge(ctx context.Context, syncIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range syncIDs {
		tag, ok := r.pending[id]
		if !ok {
			r.logger.Warn("Acknowledge for unknown delivery", "sync_id", id)
			continue
		}
		if err := r.client.Ack(tag); err != nil {
			return fmt.Errorf("failed to ack %s: %w", id, err)
		}
		delete(r.pending, id)
	}
	return nil
}

// Push publishes every record, then waits for all confirms
func (r *Relay) Push(ctx context.Context, records []models.SyncRecord) error {
	routingKey := PushRoutingKey(r.siteID)

	confirms := make([]Confirmation, 0, len(records))
	for _, rec := range records {
		confirm, err := r.client.Publish(ctx, routingKey, rec.SyncID, rec)
		if err != nil {
			return err
		}
		confirms = append(confirms, confirm)
	}

	for i, confirm := range confirms {
		if err := confirm.Wait(ctx); err != nil {
			return fmt.Errorf("record %s not confirmed: %w", records[i].SyncID, err)
		}
	}
	return nil
}
