package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes messages on a dedicated confirm-mode channel and waits
// for the broker to confirm each one. Publishes are serialized on that channel.
type Publisher struct {
	cm             *ConnectionManager
	confirmTimeout time.Duration
	publishTimeout time.Duration
	maxRetries     int
	mandatory      bool
	logger         *slog.Logger

	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
	closed   bool
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishTimeout sets the publish timeout used when ctx has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithPublishRetries sets the maximum number of publish retries
func WithPublishRetries(retries int) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = retries
	}
}

// WithMandatory makes unroutable messages fail with ErrMandatoryFailed
func WithMandatory(mandatory bool) PublisherOption {
	return func(p *Publisher) {
		p.mandatory = mandatory
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a new publisher
func NewPublisher(cm *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		cm:             cm,
		confirmTimeout: 5 * time.Second,
		publishTimeout: 10 * time.Second,
		maxRetries:     3,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish publishes a message and waits for its confirmation
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return p.publishError(exchange, routingKey, msg, ctx.Err())
			}
		}

		err := p.publishWithConfirm(ctx, exchange, routingKey, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			break
		}
		p.logger.WarnContext(ctx, "publish attempt failed",
			"exchange", exchange,
			"routingKey", routingKey,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return p.publishError(exchange, routingKey, msg, lastErr)
}

func (p *Publisher) publishError(exchange, routingKey string, msg amqp.Publishing, err error) error {
	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		MessageID:  msg.MessageId,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

func (p *Publisher) publishWithConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	if err := p.ensureChannel(); err != nil {
		return err
	}

	if err := p.ch.PublishWithContext(ctx, exchange, routingKey, p.mandatory, false, msg); err != nil {
		p.resetChannel()
		return fmt.Errorf("failed to publish: %w", err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	// A returned message is always followed by its confirmation
	returned := false
	for {
		select {
		case <-p.returns:
			returned = true

		case confirm, ok := <-p.confirms:
			if !ok {
				p.resetChannel()
				return ErrConnectionClosed
			}
			if !confirm.Ack {
				return ErrPublishNotConfirmed
			}
			if returned {
				return ErrMandatoryFailed
			}
			return nil

		case <-timer.C:
			// The pending confirmation would pair with the next publish
			p.resetChannel()
			return ErrPublishTimeout

		case <-ctx.Done():
			p.resetChannel()
			return ctx.Err()
		}
	}
}

// ensureChannel opens the confirm channel on first use or after a failure; callers hold p.mu
func (p *Publisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}

	ch, err := p.cm.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to enable confirms: %w", err)
	}

	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returns = ch.NotifyReturn(make(chan amqp.Return, 1))
	return nil
}

// resetChannel drops the current channel; callers hold p.mu
func (p *Publisher) resetChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close closes the confirm channel; the connection is owned by the ConnectionManager
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.ch != nil && !p.ch.IsClosed() {
		err := p.ch.Close()
		p.ch = nil
		return err
	}
	return nil
}
