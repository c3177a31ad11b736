package messaging

import (
	"context"

	"github.com/glimte/fishbus-go/contracts"
)

// TransportPublisher sends completed envelopes to a broker
type TransportPublisher interface {
	// Publish sends an envelope to the destination (queue, routing key or stream)
	Publish(ctx context.Context, destination string, envelope *contracts.Envelope) error

	// Close closes the publisher
	Close() error
}

// TransportDelivery represents an inbound envelope from a transport
type TransportDelivery interface {
	// Envelope returns the received envelope
	Envelope() *contracts.Envelope

	// Acknowledge marks the message as successfully processed
	Acknowledge() error

	// Reject rejects the message with optional requeue
	Reject(requeue bool) error
}

// DeliveryHandler processes one delivery
type DeliveryHandler func(ctx context.Context, delivery TransportDelivery) error

// TransportSubscriber delivers inbound envelopes to handlers
type TransportSubscriber interface {
	// Subscribe registers a handler for messages on a source (queue or stream)
	Subscribe(ctx context.Context, source string, handler DeliveryHandler, options SubscriptionOptions) error

	// Unsubscribe removes a subscription
	Unsubscribe(source string) error

	// Close closes the subscriber
	Close() error
}

// SubscriptionOptions configures a subscription
type SubscriptionOptions struct {
	PrefetchCount int
	AutoAck       bool
	// Group and Consumer name the consumer group member on transports that have groups
	Group    string
	Consumer string
}
