package redisstream

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/messaging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reminder struct {
	_    struct{} `fishbus:"label=test.reminder"`
	ID   string   `fishbus:"messageid"`
	Text string
}

// redisClient returns a connected Redis client or skips the test.
func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

func testStream(t *testing.T, client *redis.Client) string {
	stream := "fishbus-test-" + uuid.New().String()
	t.Cleanup(func() {
		_ = client.Del(context.Background(), stream, scheduleKey(stream)).Err()
	})
	return stream
}

func TestPublishAndSubscribe(t *testing.T) {
	client := redisClient(t)
	transport := NewTransport(client, WithBlock(100*time.Millisecond))
	t.Cleanup(func() { _ = transport.Close() })

	stream := testStream(t, client)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		received []*contracts.Envelope
	)
	err := transport.Subscribe(ctx, stream, func(ctx context.Context, d messaging.TransportDelivery) error {
		if err := d.Acknowledge(); err != nil {
			return err
		}
		mu.Lock()
		received = append(received, d.Envelope())
		mu.Unlock()
		return nil
	}, messaging.SubscriptionOptions{Group: "test"})
	require.NoError(t, err)

	envelope, err := messaging.BuildMessage(&reminder{ID: "r-1", Text: "hi"}, "c-1")
	require.NoError(t, err)
	require.NoError(t, transport.Publisher().Publish(ctx, stream, envelope))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	got := received[0]
	mu.Unlock()
	assert.Equal(t, "r-1", got.ID())
	assert.Equal(t, "test.reminder", got.Label)
	assert.Equal(t, "c-1", got.CustomProperties[messaging.DefaultCorrelationProperty])

	pending, err := client.XPending(ctx, stream, "test").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	assert.ErrorIs(t, transport.Subscribe(ctx, stream, nil, messaging.SubscriptionOptions{}), ErrAlreadySubscribed)
	require.NoError(t, transport.Unsubscribe(stream))
}

func TestScheduledDelivery(t *testing.T) {
	client := redisClient(t)
	now := time.Now()
	clock := func() time.Time { return now }
	transport := NewTransport(client, WithClock(clock))
	t.Cleanup(func() { _ = transport.Close() })

	stream := testStream(t, client)
	ctx := context.Background()

	builder := messaging.NewMessageBuilder(messaging.WithClock(clock))
	envelope, err := builder.BuildDelayedMessage(&reminder{ID: "r-2"}, time.Hour, "")
	require.NoError(t, err)
	require.NoError(t, transport.Publish(ctx, stream, envelope))

	scheduled, err := transport.Scheduled(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scheduled)

	moved, err := transport.PromoteDue(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	now = now.Add(time.Hour)
	moved, err = transport.PromoteDue(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	length, err := client.XLen(ctx, stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	scheduled, err = transport.Scheduled(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, int64(0), scheduled)
}

func TestPublishAfterClose(t *testing.T) {
	client := redisClient(t)
	transport := NewTransport(client)
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	err := transport.Publish(context.Background(), "x", &contracts.Envelope{})
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestCloseAfterSubscriptionContextEnds(t *testing.T) {
	client := redisClient(t)
	transport := NewTransport(redis.NewClient(client.Options()), WithBlock(50*time.Millisecond))
	stream := testStream(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	err := transport.Subscribe(ctx, stream, func(context.Context, messaging.TransportDelivery) error { return nil }, messaging.SubscriptionOptions{})
	require.NoError(t, err)

	cancel()
	require.NoError(t, transport.Close())
}
