package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, body []byte) error

// Consumer owns one connection and channel and the queue topology. A
// failed handler nacks without requeue: the handler is responsible for
// dead-lettering, and a redelivery storm helps nobody.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	wg      sync.WaitGroup
}

type ConsumerConfig struct {
	URL           string
	Exchange      string
	TaskQueue     string
	StatusQueue   string
	ProgressQueue string
	ControlQueue  string
	DLQ           string
	Prefetch      int
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.TaskQueue, cfg.StatusQueue, cfg.ProgressQueue, cfg.ControlQueue, cfg.DLQ} {
		_, err = ch.QueueDeclare(q, true, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := map[string]string{
		cfg.TaskQueue:     "gif.tasks",
		cfg.StatusQueue:   "gif.status",
		cfg.ProgressQueue: "gif.progress",
		cfg.ControlQueue:  "gif.extract.control",
	}
	for queue, key := range bindings {
		if err = ch.QueueBind(queue, key, cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	if err = ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}, nil
}

// Consume runs workerCount workers over queue until ctx is cancelled, then
// waits for in-flight deliveries to finish.
func (c *Consumer) Consume(ctx context.Context, queue string, workerCount int, handler MessageHandler) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", workerCount),
		zap.String("queue", queue),
	)

	for i := 0; i < workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, queue, i, deliveries, handler)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish", zap.String("queue", queue))
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, queue string, id int, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer c.wg.Done()
	log := c.logger.With(zap.String("queue", queue), zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			if err := handler(ctx, d.Body); err != nil {
				log.Warn("message processing failed",
					zap.Error(err),
					zap.Uint64("delivery_tag", d.DeliveryTag),
				)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
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
