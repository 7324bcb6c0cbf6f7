// Package messagingtest provides an in-memory topic broker that satisfies
// messaging.Conn and messaging.Channel, for tests that exercise publishers
// and consumers without RabbitMQ.
//
// The broker models what the transport relies on: topic routing with
// routingkey.Matches, durable-flag conflicts (406), passive lookups of
// missing exchanges (404), per-channel prefetch, explicit ack/nack/reject,
// requeue of unsettled deliveries on channel close, and dead-lettering.
// Publisher confirms are accepted but never deferred.
package messagingtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
)

// ErrBrokerDown is returned by Dial while the broker is down.
var ErrBrokerDown = errors.New("messagingtest: broker down")

// QueueStats is a snapshot of one queue's counters.
type QueueStats struct {
	Ready        int
	Unacked      int
	Consumers    int
	Acked        int
	Nacked       int
	Rejected     int
	DeadLettered int
}

// Broker is an in-memory AMQP topic broker. The zero value is not usable;
// call NewBroker.
type Broker struct {
	mu        sync.Mutex
	cond      *sync.Cond
	exchanges map[string]*exchange
	queues    map[string]*queue
	conns     []*conn
	down      bool
	dials     int
	genSeq    int
}

type exchange struct {
	kind     string
	durable  bool
	bindings []binding
}

type binding struct {
	queue   string
	pattern string
}

type queue struct {
	name         string
	durable      bool
	args         amqp.Table
	ready        []amqp.Delivery
	consumers    int
	acked        int
	nacked       int
	rejected     int
	deadLettered int
}

// NewBroker returns an empty running broker.
func NewBroker() *Broker {
	b := &Broker{
		exchanges: map[string]*exchange{},
		queues:    map[string]*queue{},
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Dial opens a connection. It matches messaging.Dialer.
func (b *Broker) Dial(_ context.Context, _ string) (messaging.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBrokerDown
	}
	b.dials++
	c := &conn{b: b}
	b.conns = append(b.conns, c)
	return c, nil
}

// Dials reports how many connections have been opened.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// SetDown simulates a broker outage. Going down closes every connection;
// unsettled deliveries return to their queues. Declared topology and
// queued messages survive.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
	if down {
		for _, c := range b.conns {
			c.closeLocked()
		}
		b.conns = nil
	}
	b.cond.Broadcast()
}

// Publish routes a raw message through exchange, as an external producer
// would. It returns the number of queues the message reached.
func (b *Broker) Publish(exchangeName, key string, msg amqp.Publishing) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.exchanges[exchangeName]; !ok {
		return 0, notFound("exchange", exchangeName)
	}
	return b.routeLocked(exchangeName, key, deliveryFrom(exchangeName, key, msg)), nil
}

// Stats returns a snapshot of queue name. A missing queue yields zeros.
func (b *Broker) Stats(name string) QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return QueueStats{}
	}
	unacked := 0
	for _, c := range b.conns {
		for _, ch := range c.chans {
			for _, p := range ch.unacked {
				if p.queue == name {
					unacked++
				}
			}
		}
	}
	return QueueStats{
		Ready:        len(q.ready),
		Unacked:      unacked,
		Consumers:    q.consumers,
		Acked:        q.acked,
		Nacked:       q.nacked,
		Rejected:     q.rejected,
		DeadLettered: q.deadLettered,
	}
}

// Ready returns copies of the messages waiting in queue name.
func (b *Broker) Ready(name string) []amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	return append([]amqp.Delivery(nil), q.ready...)
}

// QueueExists reports whether queue name has been declared.
func (b *Broker) QueueExists(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// ExchangeExists reports whether name has been declared.
func (b *Broker) ExchangeExists(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.exchanges[name]
	return ok
}

func (b *Broker) routeLocked(exchangeName, key string, d amqp.Delivery) int {
	if exchangeName == "" {
		q, ok := b.queues[key]
		if !ok {
			return 0
		}
		q.ready = append(q.ready, d)
		b.cond.Broadcast()
		return 1
	}
	ex := b.exchanges[exchangeName]
	routed := 0
	seen := map[string]bool{}
	for _, bd := range ex.bindings {
		if seen[bd.queue] || !routingkey.Matches(bd.pattern, routingkey.Key(key)) {
			continue
		}
		q, ok := b.queues[bd.queue]
		if !ok {
			continue
		}
		seen[bd.queue] = true
		q.ready = append(q.ready, d)
		routed++
	}
	if routed > 0 {
		b.cond.Broadcast()
	}
	return routed
}

func (b *Broker) deadLetterLocked(q *queue, d amqp.Delivery) {
	dlx, _ := q.args["x-dead-letter-exchange"].(string)
	if dlx == "" {
		return
	}
	if _, ok := b.exchanges[dlx]; !ok {
		return
	}
	q.deadLettered++
	d.Redelivered = false
	d.Exchange = dlx
	b.routeLocked(dlx, d.RoutingKey, d)
}

func deliveryFrom(exchangeName, key string, msg amqp.Publishing) amqp.Delivery {
	return amqp.Delivery{
		Headers:         msg.Headers,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		DeliveryMode:    msg.DeliveryMode,
		MessageId:       msg.MessageId,
		Timestamp:       msg.Timestamp,
		Type:            msg.Type,
		Exchange:        exchangeName,
		RoutingKey:      key,
		Body:            append([]byte(nil), msg.Body...),
	}
}

func notFound(kind, name string) *amqp.Error {
	return &amqp.Error{
		Code:   amqp.NotFound,
		Reason: fmt.Sprintf("NOT_FOUND - no %s '%s' in vhost '/'", kind, name),
	}
}

func preconditionFailed(reason string) *amqp.Error {
	return &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - " + reason}
}

type conn struct {
	b      *Broker
	closed bool
	chans  []*channel
}

func (c *conn) Channel() (messaging.Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &channel{
		b:         c.b,
		unacked:   map[uint64]pending{},
		consumers: map[string]*consumer{},
	}
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *conn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

func (c *conn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closeLocked()
	return nil
}

func (c *conn) closeLocked() {
	c.closed = true
	for _, ch := range c.chans {
		ch.closeLocked()
	}
	c.b.cond.Broadcast()
}

type pending struct {
	queue string
	d     amqp.Delivery
}

type consumer struct {
	tag     string
	queue   string
	out     chan amqp.Delivery
	done    chan struct{}
	stopped bool
}

type channel struct {
	b         *Broker
	closed    bool
	prefetch  int
	nextTag   uint64
	unacked   map[uint64]pending
	consumers map[string]*consumer
}

var _ messaging.Channel = (*channel)(nil)
var _ amqp.Acknowledger = (*channel)(nil)

func (ch *channel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if ex, ok := ch.b.exchanges[name]; ok {
		if ex.kind != kind || ex.durable != durable {
			ch.closeLocked()
			return preconditionFailed(fmt.Sprintf("inequivalent arg 'durable' for exchange '%s' in vhost '/'", name))
		}
		return nil
	}
	ch.b.exchanges[name] = &exchange{kind: kind, durable: durable}
	return nil
}

func (ch *channel) ExchangeDeclarePassive(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := ch.b.exchanges[name]; !ok {
		ch.closeLocked()
		return notFound("exchange", name)
	}
	return nil
}

func (ch *channel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if name == "" {
		ch.b.genSeq++
		name = fmt.Sprintf("amq.gen-%d", ch.b.genSeq)
	}
	q, ok := ch.b.queues[name]
	if ok {
		if q.durable != durable {
			ch.closeLocked()
			return amqp.Queue{}, preconditionFailed(fmt.Sprintf("inequivalent arg 'durable' for queue '%s' in vhost '/'", name))
		}
	} else {
		q = &queue{name: name, durable: durable, args: args}
		ch.b.queues[name] = q
	}
	return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: q.consumers}, nil
}

func (ch *channel) QueueBind(name, key, exchangeName string, _ bool, _ amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ex, ok := ch.b.exchanges[exchangeName]
	if !ok {
		ch.closeLocked()
		return notFound("exchange", exchangeName)
	}
	if _, ok := ch.b.queues[name]; !ok {
		ch.closeLocked()
		return notFound("queue", name)
	}
	for _, bd := range ex.bindings {
		if bd.queue == name && bd.pattern == key {
			return nil
		}
	}
	ex.bindings = append(ex.bindings, binding{queue: name, pattern: key})
	return nil
}

func (ch *channel) Qos(prefetchCount, _ int, _ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.prefetch = prefetchCount
	return nil
}

func (ch *channel) Confirm(bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	return nil
}

func (ch *channel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchangeName, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return nil, amqp.ErrClosed
	}
	if exchangeName != "" {
		if _, ok := ch.b.exchanges[exchangeName]; !ok {
			ch.closeLocked()
			return nil, notFound("exchange", exchangeName)
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	ch.b.routeLocked(exchangeName, key, deliveryFrom(exchangeName, key, msg))
	return nil, nil
}

func (ch *channel) Consume(queueName, tag string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return nil, amqp.ErrClosed
	}
	if autoAck {
		return nil, errors.New("messagingtest: autoAck is not supported")
	}
	q, ok := ch.b.queues[queueName]
	if !ok {
		ch.closeLocked()
		return nil, notFound("queue", queueName)
	}
	if tag == "" {
		ch.b.genSeq++
		tag = fmt.Sprintf("ctag-%d", ch.b.genSeq)
	}
	cs := &consumer{
		tag:   tag,
		queue: queueName,
		out:   make(chan amqp.Delivery),
		done:  make(chan struct{}),
	}
	ch.consumers[tag] = cs
	q.consumers++
	go ch.pump(cs)
	return cs.out, nil
}

// pump moves ready messages to the consumer while the channel has
// prefetch headroom.
func (ch *channel) pump(cs *consumer) {
	defer close(cs.out)
	b := ch.b
	for {
		b.mu.Lock()
		for !cs.stopped && !ch.canDeliverLocked(cs.queue) {
			b.cond.Wait()
		}
		if cs.stopped {
			b.mu.Unlock()
			return
		}
		q := b.queues[cs.queue]
		d := q.ready[0]
		q.ready = q.ready[1:]
		ch.nextTag++
		d.DeliveryTag = ch.nextTag
		d.ConsumerTag = cs.tag
		d.Acknowledger = ch
		ch.unacked[d.DeliveryTag] = pending{queue: cs.queue, d: d}
		b.mu.Unlock()

		select {
		case cs.out <- d:
		case <-cs.done:
			return
		}
	}
}

func (ch *channel) canDeliverLocked(queueName string) bool {
	q, ok := ch.b.queues[queueName]
	if !ok || len(q.ready) == 0 {
		return false
	}
	return ch.prefetch <= 0 || len(ch.unacked) < ch.prefetch
}

func (ch *channel) Cancel(tag string, _ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	cs, ok := ch.consumers[tag]
	if !ok {
		return nil
	}
	ch.stopConsumerLocked(cs)
	delete(ch.consumers, tag)
	ch.b.cond.Broadcast()
	return nil
}

func (ch *channel) IsClosed() bool {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.closed
}

func (ch *channel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.closeLocked()
	return nil
}

func (ch *channel) closeLocked() {
	if ch.closed {
		return
	}
	ch.closed = true
	for tag, cs := range ch.consumers {
		ch.stopConsumerLocked(cs)
		delete(ch.consumers, tag)
	}
	for tag, p := range ch.unacked {
		if q, ok := ch.b.queues[p.queue]; ok {
			d := p.d
			d.Redelivered = true
			d.Acknowledger = nil
			q.ready = append([]amqp.Delivery{d}, q.ready...)
		}
		delete(ch.unacked, tag)
	}
	ch.b.cond.Broadcast()
}

func (ch *channel) stopConsumerLocked(cs *consumer) {
	if cs.stopped {
		return
	}
	cs.stopped = true
	close(cs.done)
	if q, ok := ch.b.queues[cs.queue]; ok {
		q.consumers--
	}
}

// settle removes tag from the unacked set. Caller holds b.mu.
func (ch *channel) settleLocked(tag uint64) (pending, *queue, error) {
	if ch.closed {
		return pending{}, nil, amqp.ErrClosed
	}
	p, ok := ch.unacked[tag]
	if !ok {
		return pending{}, nil, preconditionFailed(fmt.Sprintf("unknown delivery tag %d", tag))
	}
	delete(ch.unacked, tag)
	ch.b.cond.Broadcast()
	return p, ch.b.queues[p.queue], nil
}

func (ch *channel) Ack(tag uint64, _ bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	_, q, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}
	if q != nil {
		q.acked++
	}
	return nil
}

func (ch *channel) Nack(tag uint64, _ bool, requeue bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	p, q, err := ch.settleLocked(tag)
	if err != nil || q == nil {
		return err
	}
	q.nacked++
	ch.requeueOrDeadLetterLocked(q, p.d, requeue)
	return nil
}

func (ch *channel) Reject(tag uint64, requeue bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	p, q, err := ch.settleLocked(tag)
	if err != nil || q == nil {
		return err
	}
	q.rejected++
	ch.requeueOrDeadLetterLocked(q, p.d, requeue)
	return nil
}

func (ch *channel) requeueOrDeadLetterLocked(q *queue, d amqp.Delivery, requeue bool) {
	d.Acknowledger = nil
	if requeue {
		d.Redelivered = true
		q.ready = append(q.ready, d)
		return
	}
	ch.b.deadLetterLocked(q, d)
}
