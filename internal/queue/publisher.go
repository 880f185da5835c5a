package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
)

// Outbox publishes notifications to EmailQueue.  The connection is opened
// lazily and re-dialled after the broker drops it.  Publishing is
// serialised because an AMQP channel is not safe for concurrent use.
type Outbox struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewOutbox(url string, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{url: url, log: log}
}

func (o *Outbox) channelLocked() (*amqp.Channel, error) {
	if o.ch != nil && !o.ch.IsClosed() && o.conn != nil && !o.conn.IsClosed() {
		return o.ch, nil
	}
	o.closeLocked()
	conn, err := amqp.Dial(o.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(EmailQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	o.conn, o.ch = conn, ch
	return ch, nil
}

// Notify queues e.  Errors are returned for the caller to log; nothing is
// retried here.
func (o *Outbox) Notify(ctx context.Context, e model.Email) error {
	body, err := json.Marshal(EmailNotification{To: e.To, Subject: e.Subject, Body: e.Body, QueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	ch, err := o.channelLocked()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(ctx, "", EmailQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		o.closeLocked()
		return fmt.Errorf("publish: %w", err)
	}
	o.log.Debug("email queued", zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}

func (o *Outbox) closeLocked() {
	if o.ch != nil {
		_ = o.ch.Close()
		o.ch = nil
	}
	if o.conn != nil {
		_ = o.conn.Close()
		o.conn = nil
	}
}

func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
	return nil
}
