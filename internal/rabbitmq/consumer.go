package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes incoming deliveries.
// Acknowledgement is left to the handler unless the consumer runs in auto-ack mode.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ConsumeOptions configures one subscription
type ConsumeOptions struct {
	PrefetchCount int
	AutoAck       bool
	Exclusive     bool
	ConsumerTag   string
}

const maxResubscribeDelay = 30 * time.Second

// Consumer manages message consumption from RabbitMQ, one channel per queue
type Consumer struct {
	cm               *ConnectionManager
	handlerTimeout   time.Duration
	resubscribeDelay time.Duration
	open             func(queue string, opts ConsumeOptions) (channelCloser, <-chan amqp.Delivery, error)
	logger           *slog.Logger
	mu               sync.Mutex
	activeConsumers  map[string]*consumerInfo
	closed           bool
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHandlerTimeout bounds each handler invocation
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithResubscribeDelay sets the first wait before a closed consumer is reopened
func WithResubscribeDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if delay > 0 {
			c.resubscribeDelay = delay
		}
	}
}

// NewConsumer creates a new consumer
func NewConsumer(cm *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		cm:               cm,
		handlerTimeout:   30 * time.Second,
		resubscribeDelay: time.Second,
		logger:           slog.Default(),
		activeConsumers:  make(map[string]*consumerInfo),
	}
	c.open = c.openChannel

	for _, opt := range options {
		opt(c)
	}

	return c
}

// channelCloser is the part of *amqp.Channel a running consumer holds on to
type channelCloser interface {
	Close() error
}

type consumerInfo struct {
	queue       string
	consumerTag string
	opts        ConsumeOptions
	channel     channelCloser
	cancel      context.CancelFunc
	done        chan struct{}
}

// Subscribe starts consuming messages from a queue.
// When the delivery channel closes, for example after a reconnect, the
// consumer reopens its channel and consumes again until unsubscribed.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler MessageHandler, opts ConsumeOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConsumerClosed
	}
	if _, exists := c.activeConsumers[queue]; exists {
		return &ConsumerError{Queue: queue, ConsumerTag: opts.ConsumerTag, Op: "subscribe", Err: ErrAlreadySubscribed, Timestamp: time.Now()}
	}

	if opts.PrefetchCount <= 0 {
		opts.PrefetchCount = 10
	}

	ch, deliveries, err := c.open(queue, opts)
	if err != nil {
		return err
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	info := &consumerInfo{
		queue:       queue,
		consumerTag: opts.ConsumerTag,
		opts:        opts,
		channel:     ch,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	c.activeConsumers[queue] = info

	go c.processMessages(consumerCtx, info, deliveries, handler)

	c.logger.InfoContext(ctx, "subscribed to queue",
		"queue", queue,
		"prefetchCount", opts.PrefetchCount,
		"autoAck", opts.AutoAck,
	)

	return nil
}

// openChannel opens a channel with QoS and starts consuming queue on it
func (c *Consumer) openChannel(queue string, opts ConsumeOptions) (channelCloser, <-chan amqp.Delivery, error) {
	ch, err := c.cm.Channel()
	if err != nil {
		return nil, nil, &ConsumerError{Queue: queue, ConsumerTag: opts.ConsumerTag, Op: "subscribe", Err: err, Timestamp: time.Now()}
	}

	if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(queue, opts.ConsumerTag, opts.AutoAck, opts.Exclusive, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, &ConsumerError{Queue: queue, ConsumerTag: opts.ConsumerTag, Op: "consume", Err: err, Timestamp: time.Now()}
	}
	return ch, deliveries, nil
}

func (c *Consumer) processMessages(ctx context.Context, info *consumerInfo, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer func() {
		if info.channel != nil {
			_ = info.channel.Close()
		}
		c.mu.Lock()
		if c.activeConsumers[info.queue] == info {
			delete(c.activeConsumers, info.queue)
		}
		c.mu.Unlock()
		close(info.done)
		c.logger.Info("consumer stopped", "queue", info.queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed, resubscribing", "queue", info.queue, "error", ErrDeliveryChannelGone)
				if deliveries, ok = c.resubscribe(ctx, info); !ok {
					return
				}
				continue
			}

			msgCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
			err := handler(msgCtx, delivery)
			cancel()

			if err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", info.queue,
					"messageId", delivery.MessageId,
				)
			}
		}
	}
}

// resubscribe reopens the consumer's channel with backoff until it succeeds or ctx ends
func (c *Consumer) resubscribe(ctx context.Context, info *consumerInfo) (<-chan amqp.Delivery, bool) {
	if info.channel != nil {
		_ = info.channel.Close()
		info.channel = nil
	}

	delay := c.resubscribeDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		ch, deliveries, err := c.open(info.queue, info.opts)
		if err == nil {
			info.channel = ch
			c.logger.Info("resubscribed to queue", "queue", info.queue, "attempt", attempt)
			return deliveries, true
		}

		c.logger.Warn("resubscribe failed", "queue", info.queue, "attempt", attempt, "error", err)
		delay = min(delay*2, maxResubscribeDelay)
	}
}

// Unsubscribe stops consuming from a queue and waits for the consumer to stop
func (c *Consumer) Unsubscribe(queue string) error {
	c.mu.Lock()
	info, ok := c.activeConsumers[queue]
	c.mu.Unlock()

	if !ok {
		return &ConsumerError{Queue: queue, Op: "unsubscribe", Err: ErrNotSubscribed, Timestamp: time.Now()}
	}

	info.cancel()
	<-info.done
	return nil
}

// ActiveQueues returns the queues with an active consumer
func (c *Consumer) ActiveQueues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	queues := make([]string, 0, len(c.activeConsumers))
	for queue := range c.activeConsumers {
		queues = append(queues, queue)
	}
	return queues
}

// Close stops all active consumers
func (c *Consumer) Close() error {
	c.mu.Lock()
	c.closed = true
	infos := make([]*consumerInfo, 0, len(c.activeConsumers))
	for _, info := range c.activeConsumers {
		infos = append(infos, info)
	}
	c.mu.Unlock()

	for _, info := range infos {
		info.cancel()
		<-info.done
	}
	return nil
}
