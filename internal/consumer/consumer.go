package consumer

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/rabbitmq"
)

// EventHandler processes the body of one ingress message. A nil return ACKs
// the message; an error NACKs it without requeue.
type EventHandler interface {
	HandleEvent(message []byte) error
}

// Consumer reads platform events off the source queue and feeds them to a
// handler. It restarts consuming when the broker channel closes.
type Consumer struct {
	cfg         *config.RabbitMQConfig
	conn        *rabbitmq.Connection
	handler     EventHandler
	logger      *zap.Logger
	consumerTag string
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewConsumer(cfg *config.RabbitMQConfig, conn *rabbitmq.Connection, handler EventHandler, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:         cfg,
		conn:        conn,
		handler:     handler,
		logger:      logger,
		consumerTag: fmt.Sprintf("webhook-engine-%d", time.Now().Unix()),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins consuming from the configured source queue.
func (c *Consumer) Start() error {
	if c.cfg.SourceQueue == "" {
		return fmt.Errorf("source queue is required")
	}

	if err := c.startConsuming(); err != nil {
		return err
	}

	c.logger.Info("Event ingress started",
		zap.String("source_queue", c.cfg.SourceQueue),
		zap.String("consumer_tag", c.consumerTag),
	)
	return nil
}

func (c *Consumer) startConsuming() error {
	if err := c.conn.SetQoS(c.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.conn.ConsumeMessages(c.cfg.SourceQueue, c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", c.cfg.SourceQueue, err)
	}

	go c.processMessages(messages)
	return nil
}

// Stop cancels the consumer and stops message processing.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping event ingress",
		zap.String("consumer_tag", c.consumerTag),
	)
	c.cancel()
	if err := c.conn.CancelConsumer(c.consumerTag); err != nil {
		c.logger.Error("Failed to cancel consumer",
			zap.String("consumer_tag", c.consumerTag),
			zap.Error(err),
		)
	}
}

func (c *Consumer) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				c.logger.Warn("Message channel closed, attempting to restart consumer",
					zap.String("source_queue", c.cfg.SourceQueue),
				)
				c.restartConsuming()
				return
			}
			c.processOne(msg)
		}
	}
}

// restartConsuming retries until the connection recovers or Stop is called.
func (c *Consumer) restartConsuming() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		time.Sleep(2 * time.Second)
		if !c.conn.IsHealthy() {
			continue
		}

		if err := c.startConsuming(); err != nil {
			c.logger.Error("Failed to restart consuming, will retry",
				zap.String("source_queue", c.cfg.SourceQueue),
				zap.Error(err),
			)
			time.Sleep(5 * time.Second)
			continue
		}

		c.logger.Info("Consumer restarted after channel close",
			zap.String("source_queue", c.cfg.SourceQueue),
		)
		return
	}
}

func (c *Consumer) processOne(msg amqp.Delivery) {
	c.logger.Debug("Received message from source queue",
		zap.String("queue", c.cfg.SourceQueue),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	)

	if err := c.handler.HandleEvent(msg.Body); err != nil {
		c.logger.Error("Failed to process source event",
			zap.String("queue", c.cfg.SourceQueue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		if err := msg.Nack(false, false); err != nil {
			c.logger.Error("Failed to nack message",
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
