package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/permcache/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultDLQSchedule polls dead-letter depth once a minute
const DefaultDLQSchedule = "@every 1m"

// DLQMonitor periodically reports the depth of dead-letter queues.
//
// A passive declare of a missing queue makes the broker close the channel it
// was issued on, so the monitor opens channels of its own and replaces one
// after any failed poll.
type DLQMonitor struct {
	opener   ChannelOpener
	queues   []string
	schedule string
	logger   logrus.FieldLogger
	metrics  *observability.Metrics

	cron *cron.Cron
	mu   sync.Mutex
	ch   Channel
}

// NewDLQMonitor creates a new dead-letter queue monitor
func NewDLQMonitor(opener ChannelOpener, queues []string, schedule string, logger logrus.FieldLogger, metrics *observability.Metrics) *DLQMonitor {
	if schedule == "" {
		schedule = DefaultDLQSchedule
	}
	return &DLQMonitor{
		opener:   opener,
		queues:   queues,
		schedule: schedule,
		logger:   observability.OrNop(logger),
		metrics:  metrics,
	}
}

// Run polls on the schedule until ctx is cancelled
func (m *DLQMonitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, m.Poll); err != nil {
		return fmt.Errorf("invalid dlq monitor schedule %q: %w", m.schedule, err)
	}

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()

	m.Poll()
	c.Start()
	m.logger.WithField("schedule", m.schedule).Info("Dead-letter monitor started")

	<-ctx.Done()
	<-c.Stop().Done()
	m.logger.Info("Dead-letter monitor stopped")
	return nil
}

// Poll reads the current depth of every monitored queue. A queue that cannot
// be inspected keeps its last reported depth.
func (m *DLQMonitor) Poll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, queue := range m.queues {
		log := m.logger.WithField("queue", queue)

		ch, err := m.channel()
		if err != nil {
			log.WithError(err).Warn("Failed to open channel for dead-letter monitor")
			return
		}

		q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
		if err != nil {
			log.WithError(err).Warn("Failed to inspect dead-letter queue")
			m.discard()
			continue
		}
		m.metrics.SetDeadLetterDepth(queue, q.Messages)
		if q.Messages > 0 {
			log.WithField("messages", q.Messages).Warn("Dead-letter queue is not empty")
		}
	}
}

// channel returns the current channel, opening one if needed. Callers hold m.mu.
func (m *DLQMonitor) channel() (Channel, error) {
	if m.ch != nil {
		return m.ch, nil
	}
	ch, err := m.opener.Channel()
	if err != nil {
		return nil, err
	}
	m.ch = ch
	return ch, nil
}

// discard drops a channel the broker may have closed. Callers hold m.mu.
func (m *DLQMonitor) discard() {
	if m.ch == nil {
		return
	}
	if err := m.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		m.logger.WithError(err).Debug("Failed to close dead-letter monitor channel")
	}
	m.ch = nil
}

// Close releases the channel
func (m *DLQMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch == nil {
		return nil
	}
	err := m.ch.Close()
	m.ch = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
