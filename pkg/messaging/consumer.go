package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ghuser/orderflow/pkg/logger"
)

// Disposition is a handler's verdict on one delivery.
type Disposition int

const (
	// Ack settles the delivery as consumed.
	Ack Disposition = iota
	// Drop settles the delivery as a permanent failure. It is never
	// requeued; with dead-lettering enabled it is rejected to the DLX.
	Drop
	// Retry requeues the delivery after the redelivery delay.
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Handler processes one delivery. It must return a Disposition for every
// message; the consumer settles the delivery accordingly.
type Handler func(ctx context.Context, msg *message.Message) Disposition

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Queue string
	Tag   string
	// Prefetch bounds unacknowledged deliveries and concurrent handlers.
	Prefetch        int
	RedeliveryDelay time.Duration
	// DrainTimeout bounds how long shutdown waits for in-flight handlers.
	DrainTimeout time.Duration
	// DeadLettering rejects dropped deliveries instead of acking them. Set
	// it only when the queue was declared with a dead-letter exchange.
	DeadLettering bool
}

// Consumer delivers messages from one queue to a Handler with bounded
// concurrency and explicit settlement.
type Consumer struct {
	conn *Connection
	cfg  ConsumerConfig
	log  logger.Logger

	deliveries metric.Int64Counter

	readyOnce sync.Once
	ready     chan struct{}
}

// NewConsumer returns a Consumer for cfg.Queue. Prefetch below 1 is
// treated as 1.
func NewConsumer(conn *Connection, cfg ConsumerConfig, log logger.Logger) *Consumer {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	return &Consumer{
		conn:       conn,
		cfg:        cfg,
		log:        log.With("component", "consumer", "queue", cfg.Queue),
		deliveries: counter("orderflow.deliveries", "Deliveries settled by the consumer, by disposition"),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the consumer has registered with the broker for
// the first time.
func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

// Run consumes until ctx is cancelled. A lost broker connection is
// re-established with exponential backoff. On cancellation Run stops
// taking new deliveries and waits up to DrainTimeout for in-flight
// handlers; unsettled deliveries return to the queue when the channel
// closes. Run returns nil after a clean shutdown.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 30 * time.Second

	for {
		err := c.consumeOnce(ctx, h, eb.Reset)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		if !errors.Is(err, ErrBrokerUnavailable) {
			return err
		}

		wait := eb.NextBackOff()
		c.log.WarnContext(ctx, "consumer lost broker, reconnecting", "error", err, "retry_in", wait.String())
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, h Handler, onStart func()) error {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer closeChannel(ch)

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return classify(err, "set qos")
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
			return fmt.Errorf("consume %s: queue not found: %w", c.cfg.Queue, err)
		}
		return classify(err, "consume "+c.cfg.Queue)
	}

	onStart()
	c.readyOnce.Do(func() { close(c.ready) })
	c.log.InfoContext(ctx, "consumer started", "prefetch", c.cfg.Prefetch, "tag", c.cfg.Tag)

	// In-flight handlers outlive ctx so shutdown can drain them.
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	var g errgroup.Group
	g.SetLimit(c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(c.cfg.Tag, false); err != nil {
				c.log.Warn("consumer cancel failed", "error", err)
			}
			c.drain(&g, cancelTasks)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				_ = g.Wait()
				return fmt.Errorf("%w: delivery channel closed", ErrBrokerUnavailable)
			}
			g.Go(func() error {
				c.handle(taskCtx, ctx.Done(), d, h)
				return nil
			})
		}
	}
}

func (c *Consumer) drain(g *errgroup.Group, cancelTasks context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	t := time.NewTimer(c.cfg.DrainTimeout)
	defer t.Stop()
	select {
	case <-done:
		c.log.Info("consumer drained")
	case <-t.C:
		c.log.Error("consumer drain timed out, unsettled deliveries will be redelivered",
			"timeout", c.cfg.DrainTimeout.String())
		cancelTasks()
	}
}

// handle runs h for one delivery and settles it. shutdown short-circuits
// the redelivery delay.
func (c *Consumer) handle(ctx context.Context, shutdown <-chan struct{}, d amqp.Delivery, h Handler) {
	msg := toMessage(d)
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrierFrom(msg.Metadata))
	msgCtx, span := otel.Tracer(instrumentationName).Start(msgCtx, "consume "+c.cfg.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.cfg.Queue),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
			attribute.String("messaging.message.id", d.MessageId),
		),
	)
	defer span.End()
	msgCtx = logger.WithDelivery(msgCtx, logger.Delivery{
		Queue:       c.cfg.Queue,
		RoutingKey:  d.RoutingKey,
		MessageID:   d.MessageId,
		DeliveryTag: d.DeliveryTag,
		Redelivered: d.Redelivered,
	})
	msg.SetContext(msgCtx)

	disp := c.invoke(msgCtx, msg, h)
	span.SetAttributes(attribute.String("messaging.disposition", disp.String()))

	var err error
	switch disp {
	case Ack:
		err = d.Ack(false)
	case Drop:
		if c.cfg.DeadLettering {
			err = d.Reject(false)
		} else {
			err = d.Ack(false)
		}
	default:
		c.waitRedelivery(shutdown)
		err = d.Nack(false, true)
	}

	c.deliveries.Add(msgCtx, 1, metric.WithAttributes(attribute.String("disposition", disp.String())))
	if err != nil {
		c.log.WarnContext(msgCtx, "settle delivery failed",
			"disposition", disp.String(),
			"error", err,
		)
	}
}

// invoke calls h, turning a panic into Drop so a poison message cannot
// loop forever.
func (c *Consumer) invoke(ctx context.Context, msg *message.Message, h Handler) (disp Disposition) {
	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorContext(ctx, "handler panicked", "panic", r)
			disp = Drop
		}
	}()
	return h(ctx, msg)
}

func (c *Consumer) waitRedelivery(shutdown <-chan struct{}) {
	if c.cfg.RedeliveryDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.RedeliveryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-shutdown:
	}
}
