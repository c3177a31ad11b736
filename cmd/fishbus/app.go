package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/glimte/fishbus-go/config"
	"github.com/glimte/fishbus-go/health"
	"github.com/glimte/fishbus-go/logcontext"
	"github.com/glimte/fishbus-go/messaging"
	"github.com/glimte/fishbus-go/metadata"
	"github.com/glimte/fishbus-go/transports/rabbitmq"
	"github.com/glimte/fishbus-go/transports/redisstream"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	transportRabbitMQ = "rabbitmq"
	transportRedis    = "redis"

	defaultQueue = "fishbus.greetings"
)

// Greeting is the demo message exchanged by send and listen
type Greeting struct {
	ID   string         `json:"id" fishbus:"messageid"`
	Text string         `json:"text"`
	Seq  int            `json:"seq"`
	TTL  *time.Duration `json:"-" fishbus:"ttl"`
}

// newGreeting creates a greeting with a fresh id. A ttl of zero or less means no expiry.
func newGreeting(text string, seq int, ttl time.Duration) *Greeting {
	greeting := &Greeting{
		ID:   uuid.New().String(),
		Text: text,
		Seq:  seq,
	}
	if ttl > 0 {
		greeting.TTL = &ttl
	}
	return greeting
}

// GreetingLabel is the routing label of Greeting
const GreetingLabel = "demo.greeting"

// bus is the part of a transport the CLI needs
type bus interface {
	Publisher() messaging.TransportPublisher
	Subscriber() messaging.TransportSubscriber
	Close() error
}

type app struct {
	logger     *slog.Logger
	pusher     *logcontext.CorrelationPusher
	builder    *messaging.MessageBuilder
	publisher  *messaging.MessagePublisher
	subscriber messaging.TransportSubscriber
	bus        bus
}

// newRegistry registers the message types the CLI knows about
func newRegistry() (*metadata.Registry, error) {
	registry := metadata.NewRegistry()
	if err := registry.Register(&Greeting{}, metadata.WithLabel(GreetingLabel)); err != nil {
		return nil, fmt.Errorf("failed to register greeting: %w", err)
	}
	return registry, nil
}

func newBuilder(cfg *config.Config, registry *metadata.Registry) *messaging.MessageBuilder {
	return messaging.NewMessageBuilder(
		messaging.WithExtractor(metadata.NewExtractor(registry)),
		messaging.WithCorrelationProperty(cfg.Builder.CorrelationProperty),
	)
}

func newPusher(cfg *config.Config) *logcontext.CorrelationPusher {
	return logcontext.NewCorrelationPusher(cfg.Correlation.Enabled, cfg.CorrelationOptions())
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger(os.Stderr)

	if opts.destination == "" {
		opts.destination = defaultQueue
		if opts.transport == transportRedis {
			opts.destination = cfg.Redis.Stream
		}
	}

	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	builder := newBuilder(cfg, registry)

	b, err := openBus(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:  logger,
		pusher:  newPusher(cfg),
		builder: builder,
		publisher: messaging.NewMessagePublisher(b.Publisher(),
			messaging.WithBuilder(builder),
			messaging.WithPublisherLogger(logger),
		),
		subscriber: b.Subscriber(),
		bus:        b,
	}, nil
}

func openBus(ctx context.Context, cfg *config.Config, opts *globalOptions, logger *slog.Logger) (bus, error) {
	switch opts.transport {
	case transportRabbitMQ:
		transport, err := rabbitmq.NewTransport(ctx, cfg.RabbitMQ.URL,
			rabbitmq.WithExchange(cfg.RabbitMQ.Exchange),
			rabbitmq.WithDelayedExchange(cfg.RabbitMQ.DelayedExchange),
			rabbitmq.WithCorrelationProperty(cfg.Builder.CorrelationProperty),
			rabbitmq.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		if err := transport.DeclareQueue(ctx, opts.destination); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", opts.destination, err)
		}
		return transport, nil

	case transportRedis:
		return redisstream.Dial(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, redisstream.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown transport %q", opts.transport)
	}
}

// healthRegistry registers the checkers that apply to b
func healthRegistry(b bus, destination string, maxScheduled int64) *health.Registry {
	registry := health.NewRegistry()

	switch t := b.(type) {
	case *rabbitmq.Transport:
		registry.Register(health.NewConnectionChecker(transportRabbitMQ, t))
	case *redisstream.Transport:
		registry.Register(health.NewStreamChecker(t, destination, maxScheduled))
	case health.Connection:
		registry.Register(health.NewConnectionChecker("transport", t))
	}
	return registry
}

// Close releases the transport
func (a *app) Close() error {
	return a.bus.Close()
}
