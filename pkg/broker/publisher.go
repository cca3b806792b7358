package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var (
	// ErrNacked is returned when the broker refuses to take responsibility
	// for a published message
	ErrNacked = errors.New("broker nacked the message")
	// ErrUnroutable is returned when no queue is bound for the message's
	// routing key
	ErrUnroutable = errors.New("message was not routed to any queue")
)

// confirmBuffer bounds the confirmations and returns that may queue up from
// publishes whose caller stopped waiting
const confirmBuffer = 64

// Publisher sends JSON messages to a topology's exchange with its routing key.
//
// The channel is put into confirm mode and every message is published as
// mandatory: Publish returns only after the broker has routed and accepted
// the message. Publishes are serialized on the channel.
type Publisher struct {
	ch       Channel
	topology Topology
	logger   logrus.FieldLogger
	metrics  *observability.Metrics

	mu       sync.Mutex
	ready    bool
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
	// seq is the delivery tag of the last published message
	seq uint64
}

// NewPublisher creates a new publisher. The exchange is declared on first use.
func NewPublisher(ch Channel, topology Topology, logger logrus.FieldLogger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		ch:       ch,
		topology: topology,
		logger:   observability.OrNop(logger),
		metrics:  metrics,
	}
}

// Publish serializes msg and publishes it as a persistent message, waiting
// for the broker to confirm it
func (p *Publisher) Publish(ctx context.Context, msg interface{}) error {
	err := p.publish(ctx, msg)
	if err != nil {
		p.metrics.RecordPublish(p.topology.Exchange, observability.StatusError)
		p.logger.WithError(err).WithFields(logrus.Fields{
			"exchange":    p.topology.Exchange,
			"routing_key": p.topology.RoutingKey,
		}).Error("Failed to publish message")
		return err
	}
	p.metrics.RecordPublish(p.topology.Exchange, observability.StatusOK)
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureReady(); err != nil {
		return err
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	publishing := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, p.topology.Exchange, p.topology.RoutingKey, true, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topology.Exchange, err)
	}
	p.seq++

	return p.awaitConfirm(ctx, p.seq, publishing.MessageId)
}

// awaitConfirm waits for the confirmation of delivery tag. The broker sends
// a message's return before its ack, so returns are drained once the ack
// is in.
func (p *Publisher) awaitConfirm(ctx context.Context, tag uint64, messageID string) error {
	unroutable := false
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for broker confirmation: %w", ctx.Err())
		case r, ok := <-p.returns:
			if !ok {
				return fmt.Errorf("waiting for broker confirmation: %w", amqp.ErrClosed)
			}
			if r.MessageId == messageID {
				unroutable = true
			}
		case c, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("waiting for broker confirmation: %w", amqp.ErrClosed)
			}
			if c.DeliveryTag < tag {
				// left over from a publish whose caller gave up
				continue
			}
			if p.drainReturns(messageID) {
				unroutable = true
			}
			switch {
			case !c.Ack:
				return fmt.Errorf("publish to %s: %w", p.topology.Exchange, ErrNacked)
			case unroutable:
				return fmt.Errorf("publish to %s with key %s: %w", p.topology.Exchange, p.topology.RoutingKey, ErrUnroutable)
			}
			return nil
		}
	}
}

func (p *Publisher) drainReturns(messageID string) bool {
	found := false
	for {
		select {
		case r, ok := <-p.returns:
			if !ok {
				return found
			}
			if r.MessageId == messageID {
				found = true
			}
		default:
			return found
		}
	}
}

// ensureReady declares the exchange and puts the channel into confirm mode.
// A failure is retried on the next publish. Callers hold p.mu.
func (p *Publisher) ensureReady() error {
	if p.ready {
		return nil
	}
	if err := DeclareExchange(p.ch, p.topology); err != nil {
		return err
	}
	if p.confirms == nil {
		p.confirms = p.ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
		p.returns = p.ch.NotifyReturn(make(chan amqp.Return, confirmBuffer))
	}
	if err := p.ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ready = true
	return nil
}
