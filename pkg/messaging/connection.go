// Package messaging is the RabbitMQ transport for order events.
//
// Ownership split:
//   - The producer owns the exchange: it is the only side that calls
//     Topology.DeclareExchange with durability and kind.
//   - The consumer owns its queue: Topology.DeclareQueueAndBind looks the
//     exchange up passively and never re-asserts its properties, so a
//     consumer started before the producer fails with ErrExchangeNotFound
//     instead of creating a mismatched exchange. AwaitQueueAndBind retries
//     that case with exponential backoff.
//
// Delivery semantics are at-least-once. Consumer handlers return an explicit
// Disposition for every delivery:
//   - Ack   → message consumed (including duplicates that were a no-op)
//   - Drop  → permanent failure; acked, or rejected to the dead-letter
//     exchange when one is configured. Never requeued.
//   - Retry → transient failure; nacked with requeue after RedeliveryDelay,
//     so the broker redelivers it. This is the only retry path.
//
// OTel context propagation: trace context is injected into AMQP headers on
// Publish and extracted for every delivery.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ghuser/orderflow/pkg/logger"
)

// Sentinel errors for the transport. Use errors.Is() to check these.
var (
	// ErrBrokerUnavailable indicates the broker connection or channel could
	// not be obtained or was lost mid-operation. Transient.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrTopologyConflict indicates a declaration clashed with an existing
	// exchange or queue of different properties. This is a configuration
	// bug and is never retried.
	ErrTopologyConflict = errors.New("topology conflict")

	// ErrExchangeNotFound indicates the consumer looked up an exchange the
	// producer has not declared yet. Transient at startup.
	ErrExchangeNotFound = errors.New("exchange not found")
)

const (
	dialTimeout = 5 * time.Second
	heartbeat   = 10 * time.Second
)

// Channel is the subset of *amqp.Channel used by this package.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	IsClosed() bool
	Close() error
}

// Conn is the subset of *amqp.Connection used by this package.
type Conn interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Connection is a lazily dialed broker connection owned by one service
// instance. Channels are acquired per use and released by the caller.
// A connection found closed on the next acquisition is re-dialed.
type Connection struct {
	url  string
	name string
	dial Dialer
	log  logger.Logger

	mu     sync.Mutex
	conn   Conn
	closed bool
}

// ConnectionOption customizes a Connection.
type ConnectionOption func(*Connection)

// WithDialer replaces the default AMQP dialer. Tests use it to plug in an
// in-memory broker.
func WithDialer(d Dialer) ConnectionOption {
	return func(c *Connection) { c.dial = d }
}

// NewConnection returns an undialed Connection. name is reported to the
// broker as the connection_name client property.
func NewConnection(url, name string, log logger.Logger, opts ...ConnectionOption) *Connection {
	c := &Connection{
		url:  url,
		name: name,
		log:  log.With("component", "amqp"),
	}
	c.dial = c.dialAMQP
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Channel returns a fresh channel, dialing the broker first if there is no
// open connection. The caller must Close the channel.
func (c *Connection) Channel(ctx context.Context) (Channel, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %w", ErrBrokerUnavailable, err)
	}
	return ch, nil
}

func (c *Connection) connect(ctx context.Context) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: connection closed", ErrBrokerUnavailable)
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrBrokerUnavailable, err)
	}
	if c.conn != nil {
		c.log.WarnContext(ctx, "amqp: reconnected after connection loss")
	} else {
		c.log.InfoContext(ctx, "amqp: connected")
	}
	c.conn = conn
	return conn, nil
}

// Ping dials the broker if needed and reports whether a connection is open.
func (c *Connection) Ping(ctx context.Context) error {
	if _, err := c.connect(ctx); err != nil {
		return fmt.Errorf("amqp ping: %w", err)
	}
	return nil
}

// Close shuts the connection down. Later Channel calls fail with
// ErrBrokerUnavailable. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("amqp close: %w", err)
	}
	c.log.Info("amqp: connection closed")
	return nil
}

func (c *Connection) dialAMQP(_ context.Context, url string) (Conn, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(dialTimeout),
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// amqpConn adapts *amqp.Connection to Conn.
type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}
