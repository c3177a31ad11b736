package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/messaging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrTransportClosed is returned after Close
	ErrTransportClosed = errors.New("redisstream: transport is closed")

	// ErrAlreadySubscribed is returned when a stream already has a subscription
	ErrAlreadySubscribed = errors.New("redisstream: stream already subscribed")
)

// promoteScript moves due scheduled envelopes onto the stream in one step
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('XADD', KEYS[2], '*', 'envelope', item, 'sentAt', ARGV[1])
end
return #items
`)

// DefaultGroup is the consumer group used when a subscription names none
const DefaultGroup = "fishbus"

// Transport carries envelopes over Redis Streams.
// Scheduled envelopes wait in a sorted set until PromoteDue moves them onto the stream.
type Transport struct {
	client       redis.UniversalClient
	serializer   messaging.EnvelopeSerializer
	logger       *slog.Logger
	now          func() time.Time
	maxLen       int64
	block        time.Duration
	batchSize    int64
	promoteBatch int64

	mu            sync.Mutex
	subscriptions map[string]*subscription
	closed        atomic.Bool
}

// Option configures the Transport
type Option func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMaxLen trims streams approximately to n entries; zero disables trimming
func WithMaxLen(n int64) Option {
	return func(t *Transport) {
		t.maxLen = n
	}
}

// WithBlock sets how long a read waits for new entries
func WithBlock(block time.Duration) Option {
	return func(t *Transport) {
		t.block = block
	}
}

// WithBatchSize sets the maximum entries per read
func WithBatchSize(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithClock sets the time source for scheduling and expiry
func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// NewTransport creates a transport over an existing client. Close closes the client.
func NewTransport(client redis.UniversalClient, options ...Option) *Transport {
	t := &Transport{
		client:        client,
		serializer:    messaging.NewJSONEnvelopeSerializer(),
		logger:        slog.Default(),
		now:           time.Now,
		block:         time.Second,
		batchSize:     10,
		promoteBatch:  100,
		subscriptions: make(map[string]*subscription),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Dial connects to Redis and verifies the connection with PING
func Dial(ctx context.Context, opts *redis.Options, options ...Option) (*Transport, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewTransport(client, options...), nil
}

// Publisher returns a transport publisher
func (t *Transport) Publisher() messaging.TransportPublisher {
	return &publisher{transport: t}
}

// Subscriber returns a transport subscriber
func (t *Transport) Subscriber() messaging.TransportSubscriber {
	return &subscriber{transport: t}
}

// Publish appends the envelope to stream, or schedules it when its delivery time is in the future
func (t *Transport) Publish(ctx context.Context, stream string, envelope *contracts.Envelope) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if envelope == nil {
		return fmt.Errorf("envelope cannot be nil")
	}

	now := t.now()
	if envelope.IsScheduled() && envelope.ScheduledDeliveryTime.After(now) {
		data, err := t.serializer.Serialize(envelope)
		if err != nil {
			return err
		}

		err = t.client.ZAdd(ctx, scheduleKey(stream), redis.Z{
			Score:  float64(envelope.ScheduledDeliveryTime.UnixMilli()),
			Member: data,
		}).Err()
		if err != nil {
			return fmt.Errorf("zadd failed: %w", err)
		}
		return nil
	}

	values, err := encodeEntry(t.serializer, envelope, now)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: values,
	}
	if t.maxLen > 0 {
		args.MaxLen = t.maxLen
		args.Approx = true
	}

	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// PromoteDue moves scheduled envelopes whose delivery time has passed onto the stream.
// It returns the number of envelopes moved.
func (t *Transport) PromoteDue(ctx context.Context, stream string) (int, error) {
	now := t.now().UnixMilli()

	moved, err := promoteScript.Run(ctx, t.client, []string{scheduleKey(stream), stream}, now, t.promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promote scheduled envelopes: %w", err)
	}
	return moved, nil
}

// Ping checks the Redis connection
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Scheduled returns the number of envelopes waiting for their delivery time
func (t *Transport) Scheduled(ctx context.Context, stream string) (int64, error) {
	return t.client.ZCard(ctx, scheduleKey(stream)).Result()
}

// Subscribe reads stream as a member of a consumer group and hands each envelope to handler.
// Each read first promotes due scheduled envelopes. Expired envelopes are acknowledged and dropped.
func (t *Transport) Subscribe(ctx context.Context, stream string, handler messaging.DeliveryHandler, options messaging.SubscriptionOptions) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	group := options.Group
	if group == "" {
		group = DefaultGroup
	}
	consumer := options.Consumer
	if consumer == "" {
		consumer = "fishbus-" + uuid.New().String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.subscriptions[stream]; exists {
		return ErrAlreadySubscribed
	}

	if err := t.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		stream:   stream,
		group:    group,
		consumer: consumer,
		autoAck:  options.AutoAck,
		count:    t.batchSize,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if options.PrefetchCount > 0 {
		sub.count = int64(options.PrefetchCount)
	}
	t.subscriptions[stream] = sub

	go t.readLoop(subCtx, sub, handler)

	t.logger.InfoContext(ctx, "subscribed to stream",
		"stream", stream,
		"group", group,
		"consumer", consumer,
	)
	return nil
}

// ensureGroup creates the consumer group; an existing group is fine
func (t *Transport) ensureGroup(ctx context.Context, stream, group string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context, sub *subscription, handler messaging.DeliveryHandler) {
	defer func() {
		t.mu.Lock()
		if t.subscriptions[sub.stream] == sub {
			delete(t.subscriptions, sub.stream)
		}
		t.mu.Unlock()
		close(sub.done)
	}()

	backoff := 100 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := t.PromoteDue(ctx, sub.stream); err != nil && ctx.Err() == nil {
			t.logger.WarnContext(ctx, "failed to promote scheduled envelopes", "stream", sub.stream, "error", err)
		}

		res, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: sub.consumer,
			Streams:  []string{sub.stream, ">"},
			Count:    sub.count,
			Block:    t.block,
			NoAck:    sub.autoAck,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				backoff = 100 * time.Millisecond
				continue
			}

			t.logger.ErrorContext(ctx, "stream read failed", "stream", sub.stream, "error", err)
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, xstream := range res {
			for _, msg := range xstream.Messages {
				t.dispatch(ctx, sub, msg, handler)
			}
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, sub *subscription, msg redis.XMessage, handler messaging.DeliveryHandler) {
	envelope, sentAt, err := decodeEntry(t.serializer, msg.Values)
	if err != nil {
		t.logger.ErrorContext(ctx, "dropping undecodable entry", "stream", sub.stream, "entryId", msg.ID, "error", err)
		t.ack(ctx, sub, msg.ID)
		return
	}

	if expired(envelope, sentAt, t.now()) {
		t.logger.DebugContext(ctx, "dropping expired envelope",
			"stream", sub.stream,
			"messageId", envelope.ID(),
			"label", envelope.Label,
		)
		t.ack(ctx, sub, msg.ID)
		return
	}

	d := &delivery{transport: t, sub: sub, ctx: ctx, entryID: msg.ID, envelope: envelope}
	if err := handler(ctx, d); err != nil {
		t.logger.ErrorContext(ctx, "failed to handle message",
			"stream", sub.stream,
			"messageId", envelope.ID(),
			"error", err,
		)
	}
}

func (t *Transport) ack(ctx context.Context, sub *subscription, entryID string) {
	if sub.autoAck {
		return
	}
	if err := t.client.XAck(ctx, sub.stream, sub.group, entryID).Err(); err != nil {
		t.logger.ErrorContext(ctx, "xack failed", "stream", sub.stream, "entryId", entryID, "error", err)
	}
}

// Unsubscribe stops reading stream and waits for the read loop to exit
func (t *Transport) Unsubscribe(stream string) error {
	t.mu.Lock()
	sub, ok := t.subscriptions[stream]
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active subscription for stream: %s", stream)
	}

	sub.cancel()
	<-sub.done
	return nil
}

// Close stops all subscriptions and closes the client
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subscriptions))
	for _, sub := range t.subscriptions {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	// read loops that already ended have closed done, so waiting never blocks on them
	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return t.client.Close()
}

type subscription struct {
	stream   string
	group    string
	consumer string
	autoAck  bool
	count    int64
	cancel   context.CancelFunc
	done     chan struct{}
}

type publisher struct {
	transport *Transport
}

func (p *publisher) Publish(ctx context.Context, destination string, envelope *contracts.Envelope) error {
	return p.transport.Publish(ctx, destination, envelope)
}

// Close is a no-op; the client closes with the transport
func (p *publisher) Close() error {
	return nil
}

type subscriber struct {
	transport *Transport
}

func (s *subscriber) Subscribe(ctx context.Context, source string, handler messaging.DeliveryHandler, options messaging.SubscriptionOptions) error {
	return s.transport.Subscribe(ctx, source, handler, options)
}

func (s *subscriber) Unsubscribe(source string) error {
	return s.transport.Unsubscribe(source)
}

// Close is a no-op; subscriptions stop with the transport
func (s *subscriber) Close() error {
	return nil
}
