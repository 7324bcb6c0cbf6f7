package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
)

// ExchangeHandle describes a declared exchange.
type ExchangeHandle struct {
	Name    string
	Kind    string
	Durable bool
}

// QueueSpec describes a consumer-owned queue and its single binding.
type QueueSpec struct {
	Name     string
	Durable  bool
	Exchange string
	Pattern  string
	// DeadLetterExchange, when set, receives deliveries rejected with Drop.
	DeadLetterExchange string
}

// QueueHandle describes a declared and bound queue.
type QueueHandle struct {
	Name      string
	Exchange  string
	Pattern   string
	Messages  int
	Consumers int
}

// Topology declares exchanges, queues and bindings.
type Topology struct {
	conn *Connection
	log  logger.Logger
}

// NewTopology returns a Topology using conn.
func NewTopology(conn *Connection, log logger.Logger) *Topology {
	return &Topology{conn: conn, log: log.With("component", "topology")}
}

// DeclareExchange idempotently declares a topic exchange. Redeclaring with
// the same properties succeeds. Redeclaring with different durability
// fails with ErrTopologyConflict.
func (t *Topology) DeclareExchange(ctx context.Context, name string, durable bool) (ExchangeHandle, error) {
	ch, err := t.conn.Channel(ctx)
	if err != nil {
		return ExchangeHandle{}, err
	}
	defer closeChannel(ch)

	if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, durable, false, false, false, nil); err != nil {
		return ExchangeHandle{}, classify(err, "declare exchange "+name)
	}

	t.log.InfoContext(ctx, "exchange declared", "exchange", name, "durable", durable)
	return ExchangeHandle{Name: name, Kind: amqp.ExchangeTopic, Durable: durable}, nil
}

// DeclareQueueAndBind looks the exchange up without asserting its
// properties, then declares the queue and binds it with spec.Pattern.
// A missing exchange yields ErrExchangeNotFound and nothing is declared.
func (t *Topology) DeclareQueueAndBind(ctx context.Context, spec QueueSpec) (QueueHandle, error) {
	if err := routingkey.ValidatePattern(spec.Pattern); err != nil {
		return QueueHandle{}, err
	}

	ch, err := t.conn.Channel(ctx)
	if err != nil {
		return QueueHandle{}, err
	}
	defer closeChannel(ch)

	if err := ch.ExchangeDeclarePassive(spec.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return QueueHandle{}, classify(err, "lookup exchange "+spec.Exchange)
	}

	var args amqp.Table
	if spec.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": spec.DeadLetterExchange}
	}
	q, err := ch.QueueDeclare(spec.Name, spec.Durable, false, false, false, args)
	if err != nil {
		return QueueHandle{}, classify(err, "declare queue "+spec.Name)
	}
	if err := ch.QueueBind(q.Name, spec.Pattern, spec.Exchange, false, nil); err != nil {
		return QueueHandle{}, classify(err, "bind queue "+spec.Name)
	}

	t.log.InfoContext(ctx, "queue bound",
		"queue", q.Name,
		"exchange", spec.Exchange,
		"pattern", spec.Pattern,
		"messages", q.Messages,
	)
	return QueueHandle{
		Name:      q.Name,
		Exchange:  spec.Exchange,
		Pattern:   spec.Pattern,
		Messages:  q.Messages,
		Consumers: q.Consumers,
	}, nil
}

// AwaitExchange retries DeclareExchange with exponential backoff while the
// broker is unreachable, up to maxWait. A conflicting redeclaration fails
// immediately.
func (t *Topology) AwaitExchange(ctx context.Context, name string, durable bool, maxWait time.Duration) (ExchangeHandle, error) {
	return await(ctx, t.log, maxWait, func() (ExchangeHandle, error) {
		return t.DeclareExchange(ctx, name, durable)
	}, "exchange", name)
}

// AwaitQueueAndBind retries DeclareQueueAndBind with exponential backoff
// while the exchange is missing or the broker is unreachable, up to
// maxWait. Topology conflicts and invalid patterns fail immediately.
func (t *Topology) AwaitQueueAndBind(ctx context.Context, spec QueueSpec, maxWait time.Duration) (QueueHandle, error) {
	return await(ctx, t.log, maxWait, func() (QueueHandle, error) {
		return t.DeclareQueueAndBind(ctx, spec)
	}, "queue", spec.Name, "exchange", spec.Exchange)
}

func await[T any](ctx context.Context, log logger.Logger, maxWait time.Duration, declare func() (T, error), attrs ...any) (T, error) {
	op := func() (T, error) {
		h, err := declare()
		if err != nil && !isTransient(err) {
			return h, backoff.Permanent(err)
		}
		return h, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 15 * time.Second

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WarnContext(ctx, "topology not ready, retrying",
				append(attrs, "error", err, "retry_in", next.String())...)
		}),
	)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrExchangeNotFound) || errors.Is(err, ErrBrokerUnavailable)
}

// classify maps broker channel exceptions onto the package sentinels.
func classify(err error, op string) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.PreconditionFailed:
			return fmt.Errorf("%w: %s: %s", ErrTopologyConflict, op, amqpErr.Reason)
		case amqp.NotFound:
			return fmt.Errorf("%w: %s: %s", ErrExchangeNotFound, op, amqpErr.Reason)
		case amqp.ChannelError, amqp.ConnectionForced, amqp.FrameError:
			return fmt.Errorf("%w: %s: %s", ErrBrokerUnavailable, op, amqpErr.Reason)
		}
	}
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %s: %w", ErrBrokerUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func closeChannel(ch Channel) {
	if ch.IsClosed() {
		return
	}
	_ = ch.Close()
}
