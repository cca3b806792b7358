package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var testTopology = Topology{
	Exchange:           "permissions.events",
	RoutingKey:         "permission.changed",
	Queue:              "permcache.permission-changed",
	DeadLetterExchange: "permissions.events.dlx",
	DeadLetterQueue:    "permcache.permission-changed.dlq",
}

// fakeChannel records every call made against it
type fakeChannel struct {
	mu sync.Mutex

	calls      []string
	queueArgs  map[string]amqp.Table
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
	depths     map[string]int

	exchangeErr error
	publishErr  error
	passiveErr  error
	consumeErr  error
	confirmErr  error
	cancelled   []string
	closed      bool

	// publisher confirms
	confirming bool
	confirms   chan amqp.Confirmation
	returns    chan amqp.Return
	seq        uint64
	mandatory  []bool
	nack       bool
	noRoute    bool
	hold       bool
	held       []amqp.Confirmation
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queueArgs:  map[string]amqp.Table{},
		deliveries: make(chan amqp.Delivery),
		depths:     map[string]int{},
	}
}

func (f *fakeChannel) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeChannel) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("exchange:%s:%s", name, kind))
	return f.exchangeErr
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("queue:" + name)
	f.queueArgs[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("passive:" + name)
	if f.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if f.passiveErr != nil {
		var amqpErr *amqp.Error
		if errors.As(f.passiveErr, &amqpErr) {
			// the broker closes a channel after a failed passive declare
			f.closed = true
		}
		return amqp.Queue{}, f.passiveErr
	}
	return amqp.Queue{Name: name, Messages: f.depths[name]}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("bind:%s:%s:%s", name, key, exchange))
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("qos:%d", prefetchCount))
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("consume:%s:autoAck=%t", queue, autoAck))
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, consumer)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("publish:%s:%s", exchange, key))
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	f.mandatory = append(f.mandatory, mandatory)

	if !f.confirming {
		return nil
	}
	f.seq++
	// like the broker, a return precedes the ack of the same message
	if f.noRoute && mandatory {
		f.returns <- amqp.Return{
			ReplyCode:  amqp.NoRoute,
			ReplyText:  "NO_ROUTE",
			Exchange:   exchange,
			RoutingKey: key,
			MessageId:  msg.MessageId,
		}
	}
	confirmation := amqp.Confirmation{DeliveryTag: f.seq, Ack: !f.nack}
	if f.hold {
		f.held = append(f.held, confirmation)
		return nil
	}
	f.confirms <- confirmation
	return nil
}

// release delivers held confirmations and stops holding new ones
func (f *fakeChannel) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.held {
		f.confirms <- c
	}
	f.held = nil
	f.hold = false
}

func (f *fakeChannel) Confirm(noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("confirm")
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirming = true
	return nil
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = confirm
	return confirm
}

func (f *fakeChannel) NotifyReturn(c chan amqp.Return) chan amqp.Return {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returns = c
	return c
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeOpener hands out its channels in order, repeating the last one
type fakeOpener struct {
	mu       sync.Mutex
	channels []*fakeChannel
	opened   int
	err      error
}

func newFakeOpener(channels ...*fakeChannel) *fakeOpener {
	return &fakeOpener{channels: channels}
}

func (o *fakeOpener) Channel() (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	i := o.opened
	if i >= len(o.channels) {
		i = len(o.channels) - 1
	}
	o.opened++
	return o.channels[i], nil
}

func (o *fakeOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// fakeAcknowledger records how each delivery was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked) + len(a.nacked)
}

func (a *fakeAcknowledger) Acked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...)
}

func (a *fakeAcknowledger) Nacked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.nacked...)
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		MessageId:    fmt.Sprintf("msg-%d", tag),
		Body:         []byte(body),
	}
}
