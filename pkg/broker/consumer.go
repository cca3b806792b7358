package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/permcache/pkg/broker"

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery
// channel, usually because the connection dropped
var ErrDeliveriesClosed = errors.New("broker delivery channel closed")

// Handler processes one decoded message
type Handler[T any] interface {
	Handle(ctx context.Context, msg T) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc[T any] func(ctx context.Context, msg T) error

// Handle calls f(ctx, msg)
func (f HandlerFunc[T]) Handle(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

// Consumer consumes JSON messages of type T from a topology's queue.
//
// Messages that do not decode to a T are acknowledged and dropped. Handler
// errors are retried per the RetryPolicy; once retries are exhausted the
// message is rejected without requeue and the broker routes it to the
// dead-letter queue.
type Consumer[T any] struct {
	ch       Channel
	topology Topology
	handler  Handler[T]
	retry    RetryPolicy
	tag      string
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewConsumer creates a new consumer
func NewConsumer[T any](ch Channel, topology Topology, handler Handler[T], policy RetryPolicy, logger logrus.FieldLogger, metrics *observability.Metrics) *Consumer[T] {
	return &Consumer[T]{
		ch:       ch,
		topology: topology,
		handler:  handler,
		retry:    policy,
		tag:      topology.Queue + "-" + uuid.NewString()[:8],
		logger:   observability.OrNop(logger).WithField("queue", topology.Queue),
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
	}
}

// Run declares the topology and processes deliveries until ctx is cancelled.
// A message being handled when ctx is cancelled, including its retries, is
// finished before Run returns.
func (c *Consumer[T]) Run(ctx context.Context) error {
	if err := Declare(c.ch, c.topology); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(c.topology.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.topology.Queue, err)
	}

	c.logger.WithField("consumer_tag", c.tag).Info("Consumer started")

	for {
		select {
		case <-ctx.Done():
			return c.stop()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			if ctx.Err() != nil {
				// left unacknowledged; redelivered once the channel closes
				return c.stop()
			}
			c.process(context.WithoutCancel(ctx), d)
		}
	}
}

// Close releases the channel
func (c *Consumer[T]) Close() error {
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close consumer channel: %w", err)
	}
	return nil
}

func (c *Consumer[T]) stop() error {
	if err := c.ch.Cancel(c.tag, false); err != nil {
		c.logger.WithError(err).Warn("Failed to cancel consumer")
	}
	c.logger.Info("Consumer stopped")
	return nil
}

func (c *Consumer[T]) process(ctx context.Context, d amqp.Delivery) {
	start := time.Now()

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
	ctx, span := c.tracer.Start(ctx, "broker.Consume", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", c.topology.Queue),
			attribute.String("messaging.message_id", d.MessageId),
		))
	defer span.End()

	log := c.logger.WithFields(logrus.Fields{
		"message_id":   d.MessageId,
		"delivery_tag": d.DeliveryTag,
		"redelivered":  d.Redelivered,
	})

	var msg *T
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg == nil {
		log.WithError(err).Warn("Dropping malformed message")
		c.ack(d, log)
		c.metrics.RecordConsumed(c.topology.Queue, observability.OutcomeMalformed, time.Since(start))
		span.SetAttributes(attribute.String("messaging.outcome", observability.OutcomeMalformed))
		return
	}

	attempts := c.retry.attempts()
	err := retry.Do(
		func() error { return c.handle(ctx, *msg) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(c.retry.delayType),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= attempts {
				return
			}
			log.WithError(err).WithFields(logrus.Fields{
				"retry":   n + 1,
				"retries": c.retry.Retries,
				"backoff": c.retry.Delay(n + 1).String(),
			}).Warn("Handler failed, retrying")
			c.metrics.RecordRetry(c.topology.Queue)
		}),
	)

	if err != nil {
		log.WithError(err).Error("Handler failed, dead-lettering message")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.WithError(nackErr).Error("Failed to reject message")
		}
		c.metrics.RecordConsumed(c.topology.Queue, observability.OutcomeDeadLettered, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("messaging.outcome", observability.OutcomeDeadLettered))
		return
	}

	c.ack(d, log)
	c.metrics.RecordConsumed(c.topology.Queue, observability.OutcomeAcked, time.Since(start))
	span.SetAttributes(attribute.String("messaging.outcome", observability.OutcomeAcked))
}

// handle runs the handler, turning a panic into a permanent failure
func (c *Consumer[T]) handle(ctx context.Context, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic in message handler")
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return c.handler.Handle(ctx, msg)
}

func (c *Consumer[T]) ack(d amqp.Delivery, log logrus.FieldLogger) {
	if err := d.Ack(false); err != nil {
		log.WithError(err).Error("Failed to acknowledge message")
	}
}
