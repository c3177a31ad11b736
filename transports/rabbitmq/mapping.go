package rabbitmq

import (
	"fmt"
	"strconv"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DelayHeader is read by the delayed message exchange plugin
	DelayHeader = "x-delay"

	// ScheduledHeader carries the requested delivery time (RFC 3339, UTC)
	ScheduledHeader = "fishbus-scheduled-at"
)

// Mapper converts envelopes to AMQP publishings and deliveries back to envelopes
type Mapper struct {
	// CorrelationProperty is the custom property mirrored into CorrelationId
	CorrelationProperty string
}

// ToPublishing maps an envelope onto an AMQP publishing.
// delayed reports whether the envelope must go through the delayed exchange.
func (m Mapper) ToPublishing(envelope *contracts.Envelope, now time.Time) (publishing amqp.Publishing, delayed bool) {
	headers := make(amqp.Table, len(envelope.CustomProperties)+2)
	for key, value := range envelope.CustomProperties {
		headers[key] = headerValue(value)
	}

	publishing = amqp.Publishing{
		Headers:      headers,
		ContentType:  envelope.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID(),
		Type:         envelope.Label,
		Timestamp:    now.UTC(),
		Body:         envelope.Body,
	}

	if correlationID, ok := envelope.StringProperty(m.CorrelationProperty); ok {
		publishing.CorrelationId = correlationID
	}

	if envelope.TimeToLive != nil {
		publishing.Expiration = strconv.FormatInt(clampMillis(*envelope.TimeToLive), 10)
	}

	if envelope.ScheduledDeliveryTime != nil {
		at := envelope.ScheduledDeliveryTime.UTC()
		headers[DelayHeader] = clampMillis(at.Sub(now))
		headers[ScheduledHeader] = at.Format(time.RFC3339Nano)
		delayed = true
	}

	return publishing, delayed
}

// FromDelivery maps an AMQP delivery back onto an envelope.
// An empty MessageId maps to a nil identity.
func (m Mapper) FromDelivery(delivery amqp.Delivery) *contracts.Envelope {
	envelope := &contracts.Envelope{
		Label:            delivery.Type,
		CustomProperties: make(map[string]interface{}, len(delivery.Headers)+1),
		ContentType:      delivery.ContentType,
		Body:             delivery.Body,
	}

	if delivery.MessageId != "" {
		id := delivery.MessageId
		envelope.MessageID = &id
	}

	if delivery.Expiration != "" {
		if ms, err := strconv.ParseInt(delivery.Expiration, 10, 64); err == nil {
			ttl := time.Duration(ms) * time.Millisecond
			envelope.TimeToLive = &ttl
		}
	}

	for key, value := range delivery.Headers {
		switch key {
		case DelayHeader:
		case ScheduledHeader:
			if text, ok := value.(string); ok {
				if at, err := time.Parse(time.RFC3339Nano, text); err == nil {
					envelope.ScheduledDeliveryTime = &at
				}
			}
		default:
			envelope.CustomProperties[key] = value
		}
	}

	if _, exists := envelope.CustomProperties[m.CorrelationProperty]; !exists && delivery.CorrelationId != "" && m.CorrelationProperty != "" {
		envelope.CustomProperties[m.CorrelationProperty] = delivery.CorrelationId
	}

	return envelope
}

func clampMillis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// headerValue converts a property to a type the AMQP table encoder accepts
func headerValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint8,
		float32, float64,
		time.Time, amqp.Decimal, amqp.Table:
		return v
	case uint:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case time.Duration:
		return v.Milliseconds()
	case fmt.Stringer:
		return v.String()
	case map[string]interface{}:
		table := make(amqp.Table, len(v))
		for key, nested := range v {
			table[key] = headerValue(nested)
		}
		return table
	case []interface{}:
		list := make([]interface{}, len(v))
		for i, nested := range v {
			list[i] = headerValue(nested)
		}
		return list
	default:
		return fmt.Sprint(v)
	}
}
