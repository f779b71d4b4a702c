// Package events publishes recorded-result events for downstream
// consumers over RabbitMQ. The producer is optional and strictly
// off the write path: a broker outage is logged and swallowed, never
// surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/keysync/internal/domain"
)

// ResultQueueName is the durable queue recorded-result events land on.
const ResultQueueName = "keysync.results"

// ResultEvent is the published message for one recorded result.
type ResultEvent struct {
	ID          uuid.UUID     `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	Combination string        `json:"combination"` // both, localOnly, remoteOnly, neither
	Result      domain.Result `json:"result"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// Connection wraps the AMQP connection and channel with reconnection.
type Connection struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex
	closed  bool
}

// Connect dials the broker and declares the result queue.
func Connect(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		ResultQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(300000),
		},
	)
	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("declare result queue: %w", err)
	}

	go c.handleReconnect()

	slog.Info("connected to event broker", "queue", ResultQueueName)
	return nil
}

func (c *Connection) handleReconnect() {
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	err := <-notifyClose
	if err == nil {
		return // normal close
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	slog.Warn("event broker connection lost, reconnecting", "error", err)
	for i := 0; i < 10; i++ {
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if err := c.connect(); err != nil {
			slog.Error("event broker reconnect failed", "error", err, "attempt", i+1)
			continue
		}
		slog.Info("reconnected to event broker", "attempts", i+1)
		return
	}
	slog.Error("giving up on event broker after 10 reconnect attempts")
}

// Close shuts the channel and connection down.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) publishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Producer publishes recorded-result events. A nil Producer is valid
// and publishes nothing, so callers need no enabled-check of their own.
type Producer struct {
	conn   *Connection
	logger *slog.Logger
}

// NewProducer creates a producer over an established connection.
func NewProducer(conn *Connection, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{conn: conn, logger: logger}
}

// PublishResult emits one recorded-result event. Failures are logged
// and dropped; event delivery is best-effort by contract.
func (p *Producer) PublishResult(ctx context.Context, rec domain.Result, combination string) {
	if p == nil || p.conn == nil {
		return
	}

	ev := ResultEvent{
		ID:          uuid.New(),
		Fingerprint: rec.Fingerprint,
		Combination: combination,
		Result:      rec,
		RecordedAt:  time.Now(),
	}

	if err := p.conn.publishJSON(ctx, ResultQueueName, ev); err != nil {
		p.logger.Warn("could not publish result event",
			"fingerprint", rec.Fingerprint, "error", err)
		return
	}
	p.logger.Debug("published result event",
		"event_id", ev.ID, "fingerprint", rec.Fingerprint, "combination", combination)
}
