package broker

import (
	"fmt"
	"sync"

	"github.com/platinummonkey/permcache/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Connection is a process-wide AMQP connection shared by publishers and
// consumers. Each user opens its own channel.
type Connection struct {
	conn   *amqp.Connection
	logger logrus.FieldLogger

	mu       sync.Mutex
	channels []*amqp.Channel
}

// Dial connects to the broker at url
func Dial(url string, logger logrus.FieldLogger) (*Connection, error) {
	logger = observability.OrNop(logger)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	c := &Connection{conn: conn, logger: logger}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			logger.WithFields(logrus.Fields{
				"code":   amqpErr.Code,
				"reason": amqpErr.Reason,
			}).Error("Broker connection closed")
		}
	}()

	return c, nil
}

// Channel opens a new channel on the connection. Channels the broker has
// since closed are forgotten.
func (c *Connection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open broker channel: %w", err)
	}

	c.mu.Lock()
	open := c.channels[:0]
	for _, existing := range c.channels {
		if !existing.IsClosed() {
			open = append(open, existing)
		}
	}
	c.channels = append(open, ch)
	c.mu.Unlock()

	return ch, nil
}

// IsClosed reports whether the connection is closed
func (c *Connection) IsClosed() bool {
	return c.conn.IsClosed()
}

// Close closes every channel opened through c, then the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil && err != amqp.ErrClosed {
			c.logger.WithError(err).Warn("Failed to close broker channel")
		}
	}

	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close broker connection: %w", err)
	}
	return nil
}
