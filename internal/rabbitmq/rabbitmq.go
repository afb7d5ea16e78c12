package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/config"
)

// Connection manages the AMQP connection and channel for the event ingress,
// with automatic reconnection when the broker drops the link.
type Connection struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	config   *config.RabbitMQConfig
	logger   *zap.Logger
	stopChan chan struct{}
	mu       sync.RWMutex
}

func NewConnection(cfg *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config:   cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes the connection, retrying the initial dial with
// exponential backoff, then starts the reconnect monitor.
func (c *Connection) Connect() error {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	const maxInitialAttempts = 10

	for attempt := 1; ; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("Connected to RabbitMQ",
				zap.Int("attempt", attempt),
			)
			break
		}
		if attempt >= maxInitialAttempts {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialAttempts, err)
		}

		c.logger.Warn("Initial connection to RabbitMQ failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	go c.monitor()
	return nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Vhost:     c.config.VHost,
		Properties: amqp.Table{
			"connection_name": "webhook-engine",
		},
	}

	conn, err := amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

// monitor watches for connection loss and reconnects until Close is called.
func (c *Connection) monitor() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.stopChan:
			return
		case amqpErr, ok := <-closeChan:
			if !ok {
				return
			}
			c.logger.Warn("RabbitMQ connection lost, reconnecting",
				zap.Error(amqpErr),
			)
			for {
				select {
				case <-c.stopChan:
					return
				default:
				}
				if err := c.connect(); err != nil {
					c.logger.Error("RabbitMQ reconnect failed, retrying", zap.Error(err))
					time.Sleep(5 * time.Second)
					continue
				}
				c.logger.Info("RabbitMQ connection re-established")
				break
			}
		}
	}
}

// Close shuts the connection down and stops the monitor.
func (c *Connection) Close() {
	close(c.stopChan)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	c.logger.Info("RabbitMQ connection closed")
}

// SetQoS bounds the number of unacknowledged messages per consumer.
func (c *Connection) SetQoS(prefetchCount int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return fmt.Errorf("channel is not open")
	}
	return c.channel.Qos(prefetchCount, 0, false)
}

// ConsumeMessages starts consuming from a queue with manual acknowledgement.
func (c *Connection) ConsumeMessages(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return nil, fmt.Errorf("channel is not open")
	}
	return c.channel.Consume(queue, consumerTag, false, false, false, false, nil)
}

// CancelConsumer cancels a running consumer by tag.
func (c *Connection) CancelConsumer(consumerTag string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return nil
	}
	return c.channel.Cancel(consumerTag, false)
}

// IsHealthy reports whether the connection and channel are open.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() &&
		c.channel != nil && !c.channel.IsClosed()
}
