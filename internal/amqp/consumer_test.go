package amqp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu       sync.Mutex
	failures int // opens that fail before one succeeds
	started  chan *fakeChannel
}

func newFakeBroker(failures int) *fakeBroker {
	return &fakeBroker{failures: failures, started: make(chan *fakeChannel, 8)}
}

func (b *fakeBroker) open() (consumerChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("dial tcp: connection refused")
	}
	return &fakeChannel{broker: b, deliveries: make(chan amqp091.Delivery, 1)}, nil
}

func (b *fakeBroker) next(t *testing.T) *fakeChannel {
	t.Helper()
	select {
	case ch := <-b.started:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("no consumer started")
		return nil
	}
}

type fakeChannel struct {
	broker     *fakeBroker
	queue      string
	deliveries chan amqp091.Delivery
	closed     atomic.Bool
}

func (f *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	f.queue = queue
	f.broker.started <- f
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeAck struct {
	acks, nacks atomic.Int32
}

func (a *fakeAck) Ack(uint64, bool) error        { a.acks.Add(1); return nil }
func (a *fakeAck) Nack(uint64, bool, bool) error { a.nacks.Add(1); return nil }
func (a *fakeAck) Reject(uint64, bool) error     { return nil }

type backoffLog struct {
	mu       sync.Mutex
	attempts []int
}

func (l *backoffLog) wait(attempt int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return time.Millisecond
}

func (l *backoffLog) seen() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.attempts...)
}

func TestConsume_EachConsumerOwnsItsChannel(t *testing.T) {
	broker := newFakeBroker(0)
	waits := &backoffLog{}
	c := newTestClient()
	c.openConsumer = broker.open
	c.backoff = waits.wait

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alerts := make(chan string, 1)
	done := make(chan error, 2)
	go func() {
		done <- c.ConsumeSubscriptionEvents(ctx, func(context.Context, *SubscriptionEvent) error { return nil })
	}()
	go func() {
		done <- c.ConsumeRenewalAlerts(ctx, func(_ context.Context, a *RenewalAlert) error {
			alerts <- a.SubscriptionID
			return nil
		})
	}()

	byQueue := map[string]*fakeChannel{}
	for i := 0; i < 2; i++ {
		ch := broker.next(t)
		byQueue[ch.queue] = ch
	}
	events, renewals := byQueue[c.queueName], byQueue[c.alertsQueue]
	require.NotNil(t, events)
	require.NotNil(t, renewals)

	// the events channel dies twice; each restart is a fresh session
	for i := 0; i < 2; i++ {
		close(events.deliveries)
		next := broker.next(t)
		assert.Equal(t, c.queueName, next.queue)
		assert.True(t, events.closed.Load(), "the failed channel is closed by its own consumer")
		events = next
	}
	assert.False(t, renewals.closed.Load(), "the alerts consumer keeps its channel")
	assert.Equal(t, []int{0, 0}, waits.seen())

	ack := &fakeAck{}
	renewals.deliveries <- amqp091.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"subscription_id":"sub-1","due_date":"2025-07-01"}`),
	}
	select {
	case id := <-alerts:
		assert.Equal(t, "sub-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}

	cancel()
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-done, context.Canceled)
	}
	assert.Equal(t, int32(1), ack.acks.Load())
}

func TestConsume_BacksOffUntilConnected(t *testing.T) {
	broker := newFakeBroker(2)
	waits := &backoffLog{}
	c := newTestClient()
	c.openConsumer = broker.open
	c.backoff = waits.wait

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeSubscriptionEvents(ctx, func(context.Context, *SubscriptionEvent) error {
			return errors.New("handler failed")
		})
	}()

	ch := broker.next(t)
	assert.Equal(t, []int{0, 1}, waits.seen())

	ack := &fakeAck{}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, Body: []byte(`{"id":"sub-1","type":"subscription.created","version":1}`)}
	ch.deliveries <- amqp091.Delivery{Acknowledger: ack, Body: []byte(`not json`)}
	close(ch.deliveries)

	broker.next(t)
	assert.Equal(t, []int{0, 1, 0}, waits.seen(), "a started session resets the backoff")
	assert.Equal(t, int32(2), ack.nacks.Load())
	assert.Zero(t, ack.acks.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
