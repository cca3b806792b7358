// Package broker carries messages over AMQP 0-9-1.
//
// A Topology names the exchange, queue and dead-letter pair for one message
// kind. Publisher sends persistent JSON messages to the exchange and waits
// for the broker to confirm each one; an unroutable message is an error.
// Consumer decodes deliveries into a typed message, retries failing handlers
// with exponential backoff and rejects exhausted messages into the
// dead-letter queue. DLQMonitor reports dead-letter depth as a gauge.
//
// Trace context travels in message headers.
package broker
