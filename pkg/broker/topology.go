package broker

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology is the broker layout for one message kind
type Topology struct {
	Exchange           string
	RoutingKey         string
	Queue              string
	DeadLetterExchange string
	DeadLetterQueue    string
	// DeadLetterRoutingKey defaults to RoutingKey
	DeadLetterRoutingKey string
}

// Validate checks that every name is present
func (t Topology) Validate() error {
	switch {
	case t.Exchange == "":
		return errors.New("topology: exchange is required")
	case t.RoutingKey == "":
		return errors.New("topology: routing key is required")
	case t.Queue == "":
		return errors.New("topology: queue is required")
	case t.DeadLetterExchange == "":
		return errors.New("topology: dead letter exchange is required")
	case t.DeadLetterQueue == "":
		return errors.New("topology: dead letter queue is required")
	}
	return nil
}

func (t Topology) deadLetterRoutingKey() string {
	if t.DeadLetterRoutingKey != "" {
		return t.DeadLetterRoutingKey
	}
	return t.RoutingKey
}

// DeclareExchange declares the durable topic exchange messages are published to
func DeclareExchange(ch Channel, t Topology) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", t.Exchange, err)
	}
	return nil
}

// Declare creates the full consumer topology: the dead-letter exchange and
// queue, the main exchange, and the main queue dead-lettering into them.
// It sets a prefetch of one so a consumer handles messages one at a time.
// Every declaration is idempotent.
func Declare(ch Channel, t Topology) error {
	if err := t.Validate(); err != nil {
		return err
	}

	dlKey := t.deadLetterRoutingKey()

	if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange %s: %w", t.DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, dlKey, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue %s: %w", t.DeadLetterQueue, err)
	}

	if err := DeclareExchange(ch, t); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": dlKey,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", t.Queue, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	return nil
}
