package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/core"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// channel is the part of *amqp091.Channel the client uses.
type channel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Client publishes ledger events and materialization requests, and consumes
// both. A broken connection is re-dialed with exponential backoff; repeated
// publish failures open a circuit breaker so callers fail fast.
type Client struct {
	url              string
	exchangeName     string
	queueName        string
	materializeQueue string

	// dial opens a connection and a ready channel; nil means dialBroker.
	dial func() (io.Closer, channel, error)

	mu         sync.Mutex
	conn       io.Closer
	channel    channel
	generation uint64 // bumped on every successful connect

	// reconnectMu serializes redials so consumers sharing the client do
	// not close each other's fresh connection.
	reconnectMu sync.Mutex

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials url and declares the exchange and queues.
// materializeQueue may be empty when the caller never touches materialization.
func NewClient(url, exchangeName, queueName, materializeQueue string) (*Client, error) {
	client := &Client{
		url:              url,
		exchangeName:     exchangeName,
		queueName:        queueName,
		materializeQueue: materializeQueue,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	dial := c.dial
	if dial == nil {
		dial = c.dialBroker
	}
	conn, ch, err := dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.generation++
	c.mu.Unlock()
	return nil
}

func (c *Client) dialBroker() (io.Closer, channel, error) {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("setup exchange and queues: %w", err)
	}
	return conn, ch, nil
}

func (c *Client) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.queueName, c.materializeQueue} {
		if queue == "" {
			continue
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		// Routing key is the queue name.
		if err := ch.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// redial replaces the connection seen by the caller. It does nothing when
// another caller already replaced it. The caller holds reconnectMu.
func (c *Client) redial(seen uint64) (bool, error) {
	if c.currentGeneration() != seen {
		return false, nil
	}
	c.closeConn()
	return true, c.connect()
}

// reconnect drops the connection the caller saw and dials again until it
// succeeds or ctx ends.
func (c *Client) reconnect(ctx context.Context, seen uint64) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	for attempt := 0; ; attempt++ {
		dialed, err := c.redial(seen)
		if err == nil {
			if dialed {
				slog.InfoContext(ctx, "Reconnected to AMQP broker", "attempts", attempt+1)
			}
			return nil
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP reconnect failed",
			"attempt", attempt+1,
			"retry_in", wait,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	return min(d, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// publish sends body to routingKey, reconnecting once on a broken connection.
func (c *Client) publish(ctx context.Context, routingKey, messageType, messageID string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", messageType)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    messageID,
		Type:         messageType,
		Timestamp:    time.Now(),
		Body:         body,
	}

	seen := c.currentGeneration()
	err := c.publishOnce(ctx, routingKey, msg)
	if isConnectionError(err) {
		slog.WarnContext(ctx, "AMQP connection lost while publishing, reconnecting", "error", err)
		c.reconnectMu.Lock()
		_, rerr := c.redial(seen)
		c.reconnectMu.Unlock()
		if rerr == nil {
			err = c.publishOnce(ctx, routingKey, msg)
		}
	}
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

func (c *Client) publishOnce(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}
	return ch.PublishWithContext(ctx, c.exchangeName, routingKey, false, false, msg)
}

// PublishLedgerEvent publishes a change notification to the events queue.
func (c *Client) PublishLedgerEvent(ctx context.Context, eventType string, ids []int64, month core.YearMonth) error {
	msg := NewLedgerEvent(eventType, ids, month)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.publish(ctx, c.queueName, eventType, msg.ID.String(), body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published ledger event",
		"message_id", msg.ID,
		"type", eventType,
		"transaction_ids", ids,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishMaterializeRequest asks the worker to materialize month.
func (c *Client) PublishMaterializeRequest(ctx context.Context, month core.YearMonth) (*MaterializeRequest, error) {
	if c.materializeQueue == "" {
		return nil, errors.New("no materialize queue configured")
	}
	msg := NewMaterializeRequest(month)
	body, err := msg.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := c.publish(ctx, c.materializeQueue, "materialize", msg.ID.String(), body); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Published materialize request",
		"message_id", msg.ID,
		"month", month.String(),
		"queue", c.materializeQueue)
	return msg, nil
}

// ConsumeLedgerEvents blocks, feeding events to handler until ctx ends.
func (c *Client) ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *LedgerEvent) error) error {
	return consume(ctx, c, c.queueName, LedgerEventFromJSON, handler)
}

// ConsumeMaterializeRequests blocks, feeding requests to handler until ctx ends.
func (c *Client) ConsumeMaterializeRequests(ctx context.Context, handler func(context.Context, *MaterializeRequest) error) error {
	if c.materializeQueue == "" {
		return errors.New("no materialize queue configured")
	}
	return consume(ctx, c, c.materializeQueue, MaterializeRequestFromJSON, handler)
}

// deliveries starts a consumer on queue and reports which connection it
// runs on.
func (c *Client) deliveries(queue string) (<-chan amqp091.Delivery, uint64, error) {
	c.mu.Lock()
	ch, gen := c.channel, c.generation
	c.mu.Unlock()
	if ch == nil {
		return nil, gen, amqp091.ErrClosed
	}
	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	return msgs, gen, err
}

// consume runs the delivery loop for queue. Handler errors requeue the
// message; undecodable bodies are dropped.
func consume[T any](ctx context.Context, c *Client, queue string, decode func([]byte) (*T, error), handler func(context.Context, *T) error) error {
	for {
		msgs, gen, err := c.deliveries(queue)
		if err != nil {
			if !isConnectionError(err) {
				return fmt.Errorf("start consuming: %w", err)
			}
		} else {
			slog.InfoContext(ctx, "Started consuming messages", "queue", queue)
			err = drain(ctx, queue, msgs, decode, handler)
			if !errors.Is(err, errDeliveriesClosed) {
				return err
			}
		}

		slog.WarnContext(ctx, "Lost AMQP consumer, reconnecting", "queue", queue, "error", err)
		if err := c.reconnect(ctx, gen); err != nil {
			return err
		}
	}
}

func drain[T any](ctx context.Context, queue string, msgs <-chan amqp091.Delivery, decode func([]byte) (*T, error), handler func(context.Context, *T) error) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}

			msg, err := decode(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message",
					"queue", queue,
					"message_id", delivery.MessageId,
					"error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"queue", queue,
					"message_id", delivery.MessageId,
					"error", err)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed message", "queue", queue, "message_id", delivery.MessageId)
		}
	}
}

func (c *Client) closeConn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) Close() error {
	return c.closeConn()
}
