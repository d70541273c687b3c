package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

const (
	maxBackoff  = 60 * time.Second
	consumerTag = "fiapx-boot-animator"
)

var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

type ConsumerConfig struct {
	URL              string
	Queue            string
	Exchange         string
	DLQ              string
	StatusQueue      string
	RoutingKey       string
	StatusRoutingKey string
	Prefetch         int
	WorkerCount      int
	BaseDelayMs      int
}

// withDefaults fills the routing keys from the queue names and keeps the pool
// at one worker or more.
func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}
	if cfg.StatusRoutingKey == "" {
		cfg.StatusRoutingKey = cfg.StatusQueue
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Prefetch < cfg.WorkerCount {
		cfg.Prefetch = cfg.WorkerCount
	}
	return cfg
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		workerCount: cfg.WorkerCount,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind request queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, cfg.StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

// Start consumes the request queue with a pool of workers and blocks until ctx
// is cancelled or the broker closes the delivery channel. The latter is
// reported as ErrDeliveriesClosed.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}
	c.wg.Wait()

	if ctx.Err() != nil {
		c.logger.Info("context cancelled, workers drained")
		return nil
	}
	return ErrDeliveriesClosed
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log.With(
				zap.Uint64("delivery_tag", d.DeliveryTag),
				zap.String("message_id", d.MessageId),
			))
		}
	}
}

// processDelivery acks handled requests. A handler error means the job is worth
// another attempt, so the delivery is requeued after an exponential backoff.
func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("ack failed", zap.Error(ackErr))
		}
		return
	}

	attempt := getAttemptFromHeaders(d)
	delay := calculateBackoff(c.baseDelay, attempt)
	log.Warn("request failed, requeueing after backoff",
		zap.Error(err),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		_ = d.Nack(false, true)
	case <-ctx.Done():
		// Shutting down: hand the request back to the broker right away.
		_ = d.Nack(false, true)
	}
}

// getAttemptFromHeaders counts x-death entries. Plain requeues carry none, so a
// redelivered message without them counts as the second attempt.
func getAttemptFromHeaders(d amqp.Delivery) int {
	if xDeath, ok := d.Headers["x-death"]; ok {
		if deaths, ok := xDeath.([]interface{}); ok && len(deaths) > 0 {
			return len(deaths)
		}
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

// calculateBackoff doubles base for every attempt after the first. The delay is
// capped at maxBackoff before it can overflow.
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	if base >= maxBackoff {
		return maxBackoff
	}
	delay := base
	for i := 1; i < attempt && delay > 0; i++ {
		if delay >= maxBackoff/2 {
			return maxBackoff
		}
		delay *= 2
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
