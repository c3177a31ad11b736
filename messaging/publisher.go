package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/logcontext"
)

// MessagePublisher builds envelopes from payloads and hands them to a transport
type MessagePublisher struct {
	transport TransportPublisher
	builder   *MessageBuilder
	logger    *slog.Logger
}

// PublisherOption configures the MessagePublisher
type PublisherOption func(*MessagePublisher)

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *MessagePublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBuilder sets the envelope builder
func WithBuilder(builder *MessageBuilder) PublisherOption {
	return func(p *MessagePublisher) {
		if builder != nil {
			p.builder = builder
		}
	}
}

// NewMessagePublisher creates a new message publisher
func NewMessagePublisher(transport TransportPublisher, options ...PublisherOption) *MessagePublisher {
	p := &MessagePublisher{
		transport: transport,
		builder:   defaultBuilder,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Send builds an envelope for the payload and publishes it.
// Without an explicit correlationID the id of the message being handled in
// ctx is forwarded, so follow-up messages share one correlation id.
func (p *MessagePublisher) Send(ctx context.Context, destination string, payload interface{}, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	envelope, err := p.builder.BuildMessage(payload, p.correlationID(ctx, correlationID), opts...)
	if err != nil {
		return nil, err
	}
	return envelope, p.publish(ctx, destination, envelope)
}

// SendDelayed builds a delayed envelope for the payload and publishes it
func (p *MessagePublisher) SendDelayed(ctx context.Context, destination string, payload interface{}, delay time.Duration, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	envelope, err := p.builder.BuildDelayedMessage(payload, delay, p.correlationID(ctx, correlationID), opts...)
	if err != nil {
		return nil, err
	}
	return envelope, p.publish(ctx, destination, envelope)
}

// Close closes the underlying transport publisher
func (p *MessagePublisher) Close() error {
	return p.transport.Close()
}

func (p *MessagePublisher) correlationID(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id, ok := logcontext.CorrelationID(ctx); ok {
		return id
	}
	return ""
}

func (p *MessagePublisher) publish(ctx context.Context, destination string, envelope *contracts.Envelope) error {
	if err := p.transport.Publish(ctx, destination, envelope); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish message",
			"messageId", envelope.ID(),
			"label", envelope.Label,
			"destination", destination,
			"error", err,
		)
		return fmt.Errorf("failed to publish %s to %s: %w", envelope.Label, destination, err)
	}

	p.logger.DebugContext(ctx, "message published",
		"messageId", envelope.ID(),
		"label", envelope.Label,
		"destination", destination,
		"scheduled", envelope.IsScheduled(),
	)
	return nil
}
