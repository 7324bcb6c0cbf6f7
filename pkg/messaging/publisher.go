package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
)

const contentTypeJSON = "application/json"

// PublishReceipt identifies a message accepted by the broker.
type PublishReceipt struct {
	MessageID   string
	Exchange    string
	RoutingKey  routingkey.Key
	PublishedAt time.Time
}

// Publisher publishes persistent messages to one exchange. It holds a
// single channel, reacquired after any failure. Safe for concurrent use.
type Publisher struct {
	conn     *Connection
	exchange string
	confirms bool
	log      logger.Logger
	now      func() time.Time

	published metric.Int64Counter
	failed    metric.Int64Counter

	mu sync.Mutex
	ch Channel
}

// NewPublisher returns a Publisher for exchange. With confirms enabled,
// Publish returns only after the broker has confirmed the message.
func NewPublisher(conn *Connection, exchange string, confirms bool, log logger.Logger) *Publisher {
	return &Publisher{
		conn:      conn,
		exchange:  exchange,
		confirms:  confirms,
		log:       log.With("component", "publisher", "exchange", exchange),
		now:       time.Now,
		published: counter("orderflow.messages.published", "Messages accepted by the broker"),
		failed:    counter("orderflow.messages.publish_failed", "Messages the broker did not accept"),
	}
}

// Publish sends msg with routing key key as a persistent JSON message.
// Message metadata becomes AMQP headers, with the OTel trace context from
// ctx injected alongside. A message without a UUID gets a fresh one.
//
// Publish does not retry. A lost connection or refused confirm yields
// ErrBrokerUnavailable and the caller decides what to do.
func (p *Publisher) Publish(ctx context.Context, key routingkey.Key, msg *message.Message) (PublishReceipt, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "publish "+p.exchange,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", key.String()),
		),
	)
	defer span.End()

	if msg.UUID == "" {
		msg.UUID = watermill.NewUUID()
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	publishedAt := p.now().UTC()
	pub := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.UUID,
		Timestamp:    publishedAt,
		Headers:      headersFromMetadata(msg.Metadata),
		Body:         msg.Payload,
	}

	if err := p.publish(ctx, key, pub); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("exchange", p.exchange)))
		return PublishReceipt{}, err
	}

	p.published.Add(ctx, 1, metric.WithAttributes(attribute.String("exchange", p.exchange)))
	p.log.DebugContext(ctx, "message published", "message_id", msg.UUID, "routing_key", key.String())
	return PublishReceipt{
		MessageID:   msg.UUID,
		Exchange:    p.exchange,
		RoutingKey:  key,
		PublishedAt: publishedAt,
	}, nil
}

func (p *Publisher) publish(ctx context.Context, key routingkey.Key, pub amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key.String(), false, false, pub)
	if err != nil {
		p.resetChannel()
		return p.wrapErr(err)
	}
	if dc == nil {
		return nil
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		p.resetChannel()
		return p.wrapErr(err)
	}
	if !acked {
		return fmt.Errorf("%w: broker nacked message %s", ErrBrokerUnavailable, pub.MessageId)
	}
	return nil
}

// channel returns the held channel, opening one if needed. Caller holds p.mu.
func (p *Publisher) channel(ctx context.Context) (Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if p.confirms {
		if err := ch.Confirm(false); err != nil {
			closeChannel(ch)
			return nil, fmt.Errorf("%w: enable confirms: %w", ErrBrokerUnavailable, err)
		}
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) resetChannel() {
	if p.ch != nil {
		closeChannel(p.ch)
		p.ch = nil
	}
}

func (p *Publisher) wrapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: publish to %s: %w", ErrBrokerUnavailable, p.exchange, err)
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
		return fmt.Errorf("%w: publish to %s: %s", ErrExchangeNotFound, p.exchange, amqpErr.Reason)
	}
	return fmt.Errorf("%w: publish to %s: %w", ErrBrokerUnavailable, p.exchange, err)
}

// Close releases the publisher's channel. The connection stays open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetChannel()
	return nil
}
