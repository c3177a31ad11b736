package rabbitmq

import (
	"testing"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMapper = Mapper{CorrelationProperty: "logCorrelationId"}

func newEnvelope() *contracts.Envelope {
	id := "m-1"
	ttl := 90 * time.Second
	return &contracts.Envelope{
		MessageID:  &id,
		Label:      "orders.placed",
		TimeToLive: &ttl,
		CustomProperties: map[string]interface{}{
			"logCorrelationId": "c-1",
			"tenant":           "acme",
		},
		ContentType: "application/json",
		Body:        []byte(`{"orderId":"o-1"}`),
	}
}

func TestToPublishing(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("maps envelope fields", func(t *testing.T) {
		publishing, delayed := testMapper.ToPublishing(newEnvelope(), now)

		assert.False(t, delayed)
		assert.Equal(t, "m-1", publishing.MessageId)
		assert.Equal(t, "orders.placed", publishing.Type)
		assert.Equal(t, "90000", publishing.Expiration)
		assert.Equal(t, "c-1", publishing.CorrelationId)
		assert.Equal(t, "application/json", publishing.ContentType)
		assert.Equal(t, amqp.Persistent, publishing.DeliveryMode)
		assert.Equal(t, now, publishing.Timestamp)
		assert.Equal(t, "acme", publishing.Headers["tenant"])
		assert.Equal(t, "c-1", publishing.Headers["logCorrelationId"])
		assert.NoError(t, publishing.Headers.Validate())
	})

	t.Run("no ttl and no identity", func(t *testing.T) {
		publishing, _ := testMapper.ToPublishing(&contracts.Envelope{Label: "x"}, now)

		assert.Empty(t, publishing.Expiration)
		assert.Empty(t, publishing.MessageId)
		assert.Empty(t, publishing.CorrelationId)
	})

	t.Run("negative ttl is clamped", func(t *testing.T) {
		ttl := -time.Second
		publishing, _ := testMapper.ToPublishing(&contracts.Envelope{TimeToLive: &ttl}, now)
		assert.Equal(t, "0", publishing.Expiration)
	})

	t.Run("scheduled delivery sets delay headers", func(t *testing.T) {
		envelope := newEnvelope()
		at := now.Add(24 * time.Hour)
		envelope.ScheduledDeliveryTime = &at

		publishing, delayed := testMapper.ToPublishing(envelope, now)

		assert.True(t, delayed)
		assert.Equal(t, int64(24*time.Hour/time.Millisecond), publishing.Headers[DelayHeader])
		assert.Equal(t, at.Format(time.RFC3339Nano), publishing.Headers[ScheduledHeader])
	})

	t.Run("scheduled time in the past clamps delay to zero", func(t *testing.T) {
		at := now.Add(-time.Hour)
		publishing, delayed := testMapper.ToPublishing(&contracts.Envelope{ScheduledDeliveryTime: &at}, now)

		assert.True(t, delayed)
		assert.Equal(t, int64(0), publishing.Headers[DelayHeader])
	})

	t.Run("converts unsupported header types", func(t *testing.T) {
		id := uuid.New()
		envelope := &contracts.Envelope{CustomProperties: map[string]interface{}{
			"uuid":     id,
			"uint":     uint(7),
			"uint32":   uint32(8),
			"duration": 2 * time.Second,
			"nested":   map[string]interface{}{"n": uint64(1)},
			"list":     []interface{}{uint16(2), "x"},
			"struct":   struct{ A int }{A: 1},
		}}

		publishing, _ := testMapper.ToPublishing(envelope, now)

		require.NoError(t, publishing.Headers.Validate())
		assert.Equal(t, id.String(), publishing.Headers["uuid"])
		assert.Equal(t, int64(7), publishing.Headers["uint"])
		assert.Equal(t, int64(8), publishing.Headers["uint32"])
		assert.Equal(t, int64(2000), publishing.Headers["duration"])
		assert.Equal(t, amqp.Table{"n": int64(1)}, publishing.Headers["nested"])
		assert.Equal(t, []interface{}{int64(2), "x"}, publishing.Headers["list"])
		assert.Equal(t, "{1}", publishing.Headers["struct"])
	})
}

func TestFromDelivery(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("round trips a scheduled envelope", func(t *testing.T) {
		original := newEnvelope()
		at := now.Add(time.Hour)
		original.ScheduledDeliveryTime = &at

		publishing, _ := testMapper.ToPublishing(original, now)
		restored := testMapper.FromDelivery(amqp.Delivery{
			Headers:       publishing.Headers,
			ContentType:   publishing.ContentType,
			CorrelationId: publishing.CorrelationId,
			Expiration:    publishing.Expiration,
			MessageId:     publishing.MessageId,
			Type:          publishing.Type,
			Body:          publishing.Body,
		})

		assert.Equal(t, "m-1", restored.ID())
		assert.Equal(t, original.Label, restored.Label)
		require.NotNil(t, restored.TimeToLive)
		assert.Equal(t, 90*time.Second, *restored.TimeToLive)
		require.NotNil(t, restored.ScheduledDeliveryTime)
		assert.True(t, at.Equal(*restored.ScheduledDeliveryTime))
		assert.Equal(t, original.CustomProperties, restored.CustomProperties)
		assert.Equal(t, original.Body, restored.Body)
		assert.Equal(t, original.ContentType, restored.ContentType)
	})

	t.Run("empty message id maps to nil identity", func(t *testing.T) {
		restored := testMapper.FromDelivery(amqp.Delivery{Type: "x"})

		assert.Nil(t, restored.MessageID)
		assert.Nil(t, restored.TimeToLive)
		assert.Nil(t, restored.ScheduledDeliveryTime)
		assert.Empty(t, restored.CustomProperties)
	})

	t.Run("correlation id property falls back to CorrelationId", func(t *testing.T) {
		restored := testMapper.FromDelivery(amqp.Delivery{CorrelationId: "from-property"})
		assert.Equal(t, "from-property", restored.CustomProperties["logCorrelationId"])
	})

	t.Run("header wins over CorrelationId", func(t *testing.T) {
		restored := testMapper.FromDelivery(amqp.Delivery{
			CorrelationId: "from-property",
			Headers:       amqp.Table{"logCorrelationId": "from-header"},
		})
		assert.Equal(t, "from-header", restored.CustomProperties["logCorrelationId"])
	})

	t.Run("invalid expiration is ignored", func(t *testing.T) {
		restored := testMapper.FromDelivery(amqp.Delivery{Expiration: "soon"})
		assert.Nil(t, restored.TimeToLive)
	})
}
