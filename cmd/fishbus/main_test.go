package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glimte/fishbus-go/config"
	"github.com/glimte/fishbus-go/health"
	"github.com/glimte/fishbus-go/logcontext"
	"github.com/glimte/fishbus-go/messaging"
	"github.com/glimte/fishbus-go/transports/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreetingEnvelope(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)
	assert.True(t, registry.IsRegistered(Greeting{}))

	cfg, err := config.Parse([]byte("builder:\n  correlation_property: cid\n"))
	require.NoError(t, err)

	builder := newBuilder(cfg, registry)
	greeting := newGreeting("hi", 1, time.Minute)
	envelope, err := builder.BuildMessage(greeting, "c-1")
	require.NoError(t, err)

	assert.Equal(t, greeting.ID, envelope.ID())
	assert.Equal(t, GreetingLabel, envelope.Label)
	require.NotNil(t, envelope.TimeToLive)
	assert.Equal(t, time.Minute, *envelope.TimeToLive)
	assert.Equal(t, "c-1", envelope.CustomProperties["cid"])

	var decoded Greeting
	require.NoError(t, builder.Decode(envelope, &decoded))
	assert.Equal(t, "hi", decoded.Text)
}

func TestDefaultGreetingDoesNotExpire(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)

	envelope, err := newBuilder(config.Default(), registry).BuildMessage(newGreeting("hello", 1, 0), "")
	require.NoError(t, err)
	assert.Nil(t, envelope.TimeToLive)

	publishing, _ := rabbitmq.Mapper{}.ToPublishing(envelope, time.Now())
	assert.Empty(t, publishing.Expiration)

	assert.Nil(t, newGreeting("hello", 1, -time.Second).TTL)
}

func TestCorrelationSurvivesTransport(t *testing.T) {
	testCases := []struct {
		desc string
		yaml string
	}{
		{desc: "defaults", yaml: ""},
		{desc: "custom message property", yaml: "correlation:\n  message_property_name: traceId\n"},
		{desc: "custom log property", yaml: "correlation:\n  log_property_name: Cid\n  message_property_name: cid\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tc.yaml))
			require.NoError(t, err)
			registry, err := newRegistry()
			require.NoError(t, err)

			sent, err := newBuilder(cfg, registry).BuildMessage(newGreeting("hi", 1, 0), "")
			require.NoError(t, err)
			sentID := sent.CustomProperties[cfg.Builder.CorrelationProperty]
			require.NotEmpty(t, sentID)

			mapper := rabbitmq.Mapper{CorrelationProperty: cfg.Builder.CorrelationProperty}
			publishing, _ := mapper.ToPublishing(sent, time.Now())
			received := mapper.FromDelivery(amqp.Delivery{
				MessageId:     publishing.MessageId,
				Type:          publishing.Type,
				CorrelationId: publishing.CorrelationId,
				Headers:       publishing.Headers,
				ContentType:   publishing.ContentType,
				Body:          publishing.Body,
			})

			ctx, scope := newPusher(cfg).Push(context.Background(), received)
			defer scope.Release()

			pushed, ok := logcontext.CorrelationID(ctx)
			require.True(t, ok)
			assert.Equal(t, sentID, pushed)

			value, ok := logcontext.Value(ctx, cfg.Correlation.LogPropertyName)
			require.True(t, ok)
			assert.Equal(t, sentID, value)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	path := filepath.Join(t.TempDir(), "fishbus.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n"), 0o600))

	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.LogFormatJSON, cfg.Log.Format)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "send")
	assert.Contains(t, names, "listen")

	send, _, err := cmd.Find([]string{"send"})
	require.NoError(t, err)
	assert.NotNil(t, send.Flags().Lookup("delay"))
	assert.NotNil(t, send.Flags().Lookup("correlation-id"))
}

type stubBus struct {
	connected bool
}

func (b *stubBus) Publisher() messaging.TransportPublisher   { return nil }
func (b *stubBus) Subscriber() messaging.TransportSubscriber { return nil }
func (b *stubBus) Close() error                              { return nil }
func (b *stubBus) IsConnected() bool                         { return b.connected }

func TestHealthRegistry(t *testing.T) {
	registry := healthRegistry(&stubBus{connected: false}, "greetings", 0)
	assert.Equal(t, []string{"transport"}, registry.Names())

	overall := registry.Check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, overall.Status)

	overall = healthRegistry(&stubBus{connected: true}, "greetings", 0).Check(context.Background())
	assert.Equal(t, health.StatusHealthy, overall.Status)
}
