package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/msupply-sync/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SyncExchange   = "msupply.sync.topic"
	confirmTimeout = 10 * time.Second
)

// ErrConnectionClosed is returned once the connection or channel has dropped
var ErrConnectionClosed = errors.New("broker connection is closed")

// RabbitMQClient handles the low-level communication with the message broker
type RabbitMQClient struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRabbitMQClient initializes a connection and a channel, enabling Publisher Confirms by default
func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		SyncExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &RabbitMQClient{
		conn:       c,
		channel:    ch,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.healthy.Store(true)
	metrics.HealthStatus.Set(1)

	client.conn.NotifyClose(client.connClosed)
	client.channel.NotifyClose(client.chanClosed)

	go func() {
		select {
		case err := <-client.connClosed:
			client.healthy.Store(false)
			metrics.HealthStatus.Set(0)
			l.Warn("RabbitMQ connection closed", "error", err)
		case err := <-client.chanClosed:
			client.healthy.Store(false)
			metrics.HealthStatus.Set(0)
			l.Warn("RabbitMQ channel closed", "error", err)
		case <-client.ctx.Done():
			return
		}
	}()
	l.Info("Successfully connected to RabbitMQ and monitors established")
	return client, nil
}

// Confirmation is a publish the broker has not ACKed or NACKed yet
type Confirmation interface {
	Wait(ctx context.Context) error
}

type deferredConfirmation struct {
	d *amqp.DeferredConfirmation
}

func (c deferredConfirmation) Wait(ctx context.Context) error { return WaitConfirm(ctx, c.d) }

// Publish sends v as JSON and returns the pending confirmation
func (r *RabbitMQClient) Publish(ctx context.Context, routingKey, messageID string, v any) (Confirmation, error) {
	if !r.IsHealthy() {
		return nil, ErrConnectionClosed
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		SyncExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			MessageId:    messageID,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		r.logger.Error("failed to publish message to exchange", "routing_key", routingKey, "message_id", messageID, "error", err)
		return nil, fmt.Errorf("publish call failed: %w", err)
	}
	return deferredConfirmation{d: deferred}, nil
}

// WaitConfirm blocks until the broker ACKs or NACKs a publish
func WaitConfirm(ctx context.Context, deferred *amqp.DeferredConfirmation) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// Close gracefully shuts down the RabbitMQ resources
func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ client")
		r.cancel()
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active
func (r *RabbitMQClient) IsHealthy() bool {
	return r.healthy.Load()
}

// BindQueue declares a durable queue and binds it to the sync exchange
func (r *RabbitMQClient) BindQueue(name, routingKey string) error {
	q, err := r.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	if err := r.channel.QueueBind(q.Name, routingKey, SyncExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", name, err)
	}
	return nil
}

// QueueDepth is the number of ready messages, not counting unacked deliveries
func (r *RabbitMQClient) QueueDepth(name string) (int, error) {
	if !r.IsHealthy() {
		return 0, ErrConnectionClosed
	}
	q, err := r.channel.QueueDeclarePassive(name, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue %s: %w", name, err)
	}
	return q.Messages, nil
}

// Get fetches one message without auto-ack. ok is false when the queue is empty
func (r *RabbitMQClient) Get(queue string) (d amqp.Delivery, ok bool, err error) {
	if !r.IsHealthy() {
		return d, false, ErrConnectionClosed
	}
	d, ok, err = r.channel.Get(queue, false)
	if err != nil {
		return d, false, fmt.Errorf("basic.get failed: %w", err)
	}
	return d, ok, nil
}

func (r *RabbitMQClient) Ack(tag uint64) error {
	return r.channel.Ack(tag, false)
}

// Nack rejects one delivery. With requeue the broker hands it out again
func (r *RabbitMQClient) Nack(tag uint64, requeue bool) error {
	return r.channel.Nack(tag, false, requeue)
}
