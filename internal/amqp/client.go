package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "subtrack/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects publishes.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config names the broker and topology.
type Config struct {
	URL         string
	Exchange    string
	Queue       string // subscription events
	AlertsQueue string // renewal alerts
}

// Client publishes and consumes on a direct exchange. Each queue is bound
// with its own name as routing key. Connections are re-established lazily
// after failures.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	alertsQueue  string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
	failureMu    sync.Mutex

	// overridden in tests
	openConsumer func() (consumerChannel, error)
	backoff      func(attempt int) time.Duration
}

// consumerChannel is the part of *amqp091.Channel a consumer uses.
type consumerChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// NewClient dials the broker and declares exchange, queues and bindings.
func NewClient(cfg Config, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	c := &Client{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		queueName:    cfg.Queue,
		alertsQueue:  cfg.AlertsQueue,
		logger:       logger.WithComponent(applog.ComponentAMQP),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) log() *applog.Logger {
	if c.logger == nil {
		c.logger = applog.Discard()
	}
	return c.logger
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func (c *Client) queues() []string {
	out := make([]string, 0, 2)
	for _, q := range []string{c.queueName, c.alertsQueue} {
		if q != "" {
			out = append(out, q)
		}
	}
	return out
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

	for _, q := range c.queues() {
		if _, err := ch.QueueDeclare(
			q,     // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}

		// routing key is the queue name
		if err := ch.QueueBind(q, q, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// ensureChannelLocked reopens the publish channel, redialing only when the
// connection itself is gone.
func (c *Client) ensureChannelLocked() (*amqp091.Channel, error) {
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if ch, err := c.conn.Channel(); err == nil {
			c.channel = ch
			return ch, nil
		}
	}
	c.dropLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	c.log().Info("Reconnected to AMQP broker", "exchange", c.exchangeName)
	return c.channel, nil
}

func (c *Client) dropLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()

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
	count := atomic.AddInt64(&c.failureCount, 1)
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()

	if count >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.log().Warn("AMQP circuit breaker opened", "failures", count)
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) publish(ctx context.Context, routingKey string, msg any) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", routingKey, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := ToJSON(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ensureChannelLocked()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("connect: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.dropLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// PublishSubscriptionEvent publishes to the events queue.
func (c *Client) PublishSubscriptionEvent(ctx context.Context, evt *SubscriptionEvent) error {
	if err := c.publish(ctx, c.queueName, evt); err != nil {
		return err
	}
	c.log().DebugContext(ctx, "Published subscription event",
		applog.FieldSubscriptionID, evt.ID,
		applog.FieldEvent, evt.Type,
		"version", evt.Version)
	return nil
}

// PublishRenewalAlert publishes to the alerts queue.
func (c *Client) PublishRenewalAlert(ctx context.Context, alert *RenewalAlert) error {
	if c.alertsQueue == "" {
		return fmt.Errorf("publish renewal alert: no alerts queue configured")
	}
	if err := c.publish(ctx, c.alertsQueue, alert); err != nil {
		return err
	}
	c.log().DebugContext(ctx, "Published renewal alert",
		applog.FieldSubscriptionID, alert.SubscriptionID,
		"due_date", alert.DueDate)
	return nil
}

// ConsumeSubscriptionEvents blocks, handing each event to handler until ctx
// is done. Handler errors requeue the message; undecodable messages are dropped.
func (c *Client) ConsumeSubscriptionEvents(ctx context.Context, handler func(context.Context, *SubscriptionEvent) error) error {
	return c.consume(ctx, c.queueName, func(ctx context.Context, body []byte) (bool, error) {
		evt, err := FromJSON[SubscriptionEvent](body)
		if err != nil {
			return false, err
		}
		return true, handler(ctx, evt)
	})
}

// ConsumeRenewalAlerts is ConsumeSubscriptionEvents for the alerts queue.
func (c *Client) ConsumeRenewalAlerts(ctx context.Context, handler func(context.Context, *RenewalAlert) error) error {
	return c.consume(ctx, c.alertsQueue, func(ctx context.Context, body []byte) (bool, error) {
		alert, err := FromJSON[RenewalAlert](body)
		if err != nil {
			return false, err
		}
		return true, handler(ctx, alert)
	})
}

// deliveryHandler reports decoded=false for poison messages.
type deliveryHandler func(ctx context.Context, body []byte) (decoded bool, err error)

// dialConsumer opens a channel of its own for one consumer on the shared
// connection, dialing again when the connection is gone. Consumers never
// share a channel with each other or with publishes.
func (c *Client) dialConsumer() (consumerChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		c.dropLocked()
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
		c.log().Info("Reconnected to AMQP broker", "exchange", c.exchangeName)
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	return ch, nil
}

func (c *Client) consume(ctx context.Context, queue string, handle deliveryHandler) error {
	open := c.openConsumer
	if open == nil {
		open = c.dialConsumer
	}
	backoff := c.backoff
	if backoff == nil {
		backoff = exponentialBackoff
	}

	attempt := 0
	for {
		started, err := c.consumeOnce(ctx, open, queue, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if started {
			attempt = 0
		}

		wait := backoff(attempt)
		attempt++
		c.log().WarnContext(ctx, "Consumer interrupted, reconnecting",
			applog.FieldError, err, "queue", queue, "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// consumeOnce runs one session on a fresh channel. started reports whether
// the broker accepted the consumer.
func (c *Client) consumeOnce(ctx context.Context, open func() (consumerChannel, error), queue string, handle deliveryHandler) (started bool, err error) {
	ch, err := open()
	if err != nil {
		return false, err
	}
	defer ch.Close()

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}

	c.log().InfoContext(ctx, "Started consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			c.log().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return true, ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return true, fmt.Errorf("message channel closed")
			}

			decoded, err := handle(ctx, delivery.Body)
			switch {
			case !decoded:
				c.log().ErrorContext(ctx, "Dropping undecodable message", applog.FieldError, err, "queue", queue)
				_ = delivery.Nack(false, false)
			case err != nil:
				c.log().ErrorContext(ctx, "Failed to handle message", applog.FieldError, err, "queue", queue)
				// requeue once; a redelivered failure goes away
				_ = delivery.Nack(false, !delivery.Redelivered)
			default:
				_ = delivery.Ack(false)
			}
		}
	}
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
