package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/internal/rabbitmq"
	"github.com/glimte/fishbus-go/logcontext"
	"github.com/glimte/fishbus-go/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// ErrDelayedExchangeRequired is returned when a scheduled envelope is published
// without a delayed exchange configured
var ErrDelayedExchangeRequired = errors.New("rabbitmq: scheduled delivery requires a delayed exchange")

// Transport implements the messaging transport interfaces for RabbitMQ
type Transport struct {
	manager         *rabbitmq.ConnectionManager
	publisher       *rabbitmq.Publisher
	consumer        *rabbitmq.Consumer
	topology        *rabbitmq.TopologyManager
	mapper          Mapper
	exchange        string
	delayedExchange string
	logger          *slog.Logger
	now             func() time.Time
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	ConnectionOptions   []rabbitmq.ConnectionOption
	PublisherOptions    []rabbitmq.PublisherOption
	ConsumerOptions     []rabbitmq.ConsumerOption
	Exchange            string
	DelayedExchange     string
	CorrelationProperty string
	Logger              *slog.Logger
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithExchange sets the exchange for immediate delivery
func WithExchange(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Exchange = name
	}
}

// WithDelayedExchange sets the delayed-message exchange; empty disables scheduled delivery
func WithDelayedExchange(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.DelayedExchange = name
	}
}

// WithCorrelationProperty sets the custom property mirrored into CorrelationId
func WithCorrelationProperty(name string) TransportOption {
	return func(cfg *TransportConfig) {
		if name != "" {
			cfg.CorrelationProperty = name
		}
	}
}

// WithLogger sets the logger for the transport and its connection
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// WithConsumerOptions sets consumer options
func WithConsumerOptions(opts ...rabbitmq.ConsumerOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, opts...)
	}
}

func defaultConfig() *TransportConfig {
	return &TransportConfig{
		Exchange:            "fishbus",
		DelayedExchange:     "fishbus.delayed",
		CorrelationProperty: logcontext.DefaultMessagePropertyName,
		Logger:              slog.Default(),
	}
}

// NewTransport creates a RabbitMQ transport and connects it
func NewTransport(ctx context.Context, url string, options ...TransportOption) (*Transport, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		opt(cfg)
	}

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(url, connOpts...)

	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(cfg.Logger)}, cfg.PublisherOptions...)
	consOpts := append([]rabbitmq.ConsumerOption{rabbitmq.WithConsumerLogger(cfg.Logger)}, cfg.ConsumerOptions...)

	return &Transport{
		manager:         manager,
		publisher:       rabbitmq.NewPublisher(manager, pubOpts...),
		consumer:        rabbitmq.NewConsumer(manager, consOpts...),
		topology:        rabbitmq.NewTopologyManager(manager),
		mapper:          Mapper{CorrelationProperty: cfg.CorrelationProperty},
		exchange:        cfg.Exchange,
		delayedExchange: cfg.DelayedExchange,
		logger:          cfg.Logger,
		now:             time.Now,
	}, nil
}

// Publisher returns a transport publisher
func (t *Transport) Publisher() messaging.TransportPublisher {
	return &publisherAdapter{transport: t}
}

// Subscriber returns a transport subscriber
func (t *Transport) Subscriber() messaging.TransportSubscriber {
	return &subscriberAdapter{transport: t}
}

// DeclareQueue declares a durable queue bound to the configured exchanges
func (t *Transport) DeclareQueue(ctx context.Context, queue string) error {
	return t.topology.DeclareTopology(ctx, rabbitmq.QueueTopology(queue, t.exchange, t.delayedExchange))
}

// IsConnected returns connection status
func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

// Close closes consumers, the publisher channel and the connection
func (t *Transport) Close() error {
	return multierr.Combine(
		t.consumer.Close(),
		t.publisher.Close(),
		t.manager.Close(),
	)
}

// route picks exchange and publishing for an envelope
func (t *Transport) route(envelope *contracts.Envelope) (string, amqp.Publishing, error) {
	publishing, delayed := t.mapper.ToPublishing(envelope, t.now())
	if !delayed {
		return t.exchange, publishing, nil
	}
	if t.delayedExchange == "" {
		return "", publishing, ErrDelayedExchangeRequired
	}
	return t.delayedExchange, publishing, nil
}

type publisherAdapter struct {
	transport *Transport
}

// Publish sends the envelope with the destination as routing key
func (p *publisherAdapter) Publish(ctx context.Context, destination string, envelope *contracts.Envelope) error {
	if envelope == nil {
		return fmt.Errorf("envelope cannot be nil")
	}

	exchange, publishing, err := p.transport.route(envelope)
	if err != nil {
		return err
	}

	return p.transport.publisher.Publish(ctx, exchange, destination, publishing)
}

// Close is a no-op; the publisher channel closes with the transport
func (p *publisherAdapter) Close() error {
	return nil
}

type subscriberAdapter struct {
	transport *Transport
}

// Subscribe consumes the queue and hands each delivery to handler as an envelope
func (s *subscriberAdapter) Subscribe(ctx context.Context, source string, handler messaging.DeliveryHandler, options messaging.SubscriptionOptions) error {
	mapper := s.transport.mapper
	autoAck := options.AutoAck

	return s.transport.consumer.Subscribe(ctx, source, func(ctx context.Context, d amqp.Delivery) error {
		return handler(ctx, &delivery{
			delivery: d,
			envelope: mapper.FromDelivery(d),
			autoAck:  autoAck,
		})
	}, rabbitmq.ConsumeOptions{
		PrefetchCount: options.PrefetchCount,
		AutoAck:       options.AutoAck,
		ConsumerTag:   options.Consumer,
	})
}

// Unsubscribe stops consuming the queue
func (s *subscriberAdapter) Unsubscribe(source string) error {
	return s.transport.consumer.Unsubscribe(source)
}

// Close is a no-op; consumers stop with the transport
func (s *subscriberAdapter) Close() error {
	return nil
}

// delivery adapts amqp.Delivery to messaging.TransportDelivery
type delivery struct {
	delivery amqp.Delivery
	envelope *contracts.Envelope
	autoAck  bool
}

func (d *delivery) Envelope() *contracts.Envelope {
	return d.envelope
}

func (d *delivery) Acknowledge() error {
	if d.autoAck {
		return nil
	}
	return d.delivery.Ack(false)
}

func (d *delivery) Reject(requeue bool) error {
	if d.autoAck {
		return nil
	}
	return d.delivery.Reject(requeue)
}
