package messaging

import (
	"fmt"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/logcontext"
	"github.com/glimte/fishbus-go/metadata"
	"github.com/google/uuid"
)

// DefaultCorrelationProperty is the custom property holding the correlation id.
// It matches the property the CorrelationPusher reads by default.
const DefaultCorrelationProperty = logcontext.DefaultMessagePropertyName

// EnvelopeOption configures an envelope before its correlation id is set
type EnvelopeOption func(*contracts.Envelope)

// WithProperty sets a custom property
func WithProperty(key string, value interface{}) EnvelopeOption {
	return func(e *contracts.Envelope) {
		if e.CustomProperties == nil {
			e.CustomProperties = make(map[string]interface{})
		}
		e.CustomProperties[key] = value
	}
}

// WithProperties sets custom properties
func WithProperties(properties map[string]interface{}) EnvelopeOption {
	return func(e *contracts.Envelope) {
		if e.CustomProperties == nil {
			e.CustomProperties = make(map[string]interface{})
		}
		for k, v := range properties {
			e.CustomProperties[k] = v
		}
	}
}

// BuilderOption configures a MessageBuilder
type BuilderOption func(*MessageBuilder)

// WithExtractor sets the metadata extractor
func WithExtractor(extractor *metadata.Extractor) BuilderOption {
	return func(b *MessageBuilder) {
		if extractor != nil {
			b.extractor = extractor
		}
	}
}

// WithCodec sets the body codec
func WithCodec(codec BodyCodec) BuilderOption {
	return func(b *MessageBuilder) {
		if codec != nil {
			b.codec = codec
		}
	}
}

// WithClock sets the time source used for scheduled delivery
func WithClock(now func() time.Time) BuilderOption {
	return func(b *MessageBuilder) {
		b.now = now
	}
}

// WithCorrelationProperty sets the custom property name of the correlation id
func WithCorrelationProperty(name string) BuilderOption {
	return func(b *MessageBuilder) {
		if name != "" {
			b.correlationProperty = name
		}
	}
}

// WithCorrelationIDGenerator sets the generator for missing correlation ids
func WithCorrelationIDGenerator(newID func() string) BuilderOption {
	return func(b *MessageBuilder) {
		b.newCorrelationID = newID
	}
}

// WithDefaultProperties sets custom properties added to every envelope
func WithDefaultProperties(properties map[string]interface{}) BuilderOption {
	return func(b *MessageBuilder) {
		for k, v := range properties {
			b.defaultProperties[k] = v
		}
	}
}

// MessageBuilder assembles envelopes from payload values
type MessageBuilder struct {
	extractor           *metadata.Extractor
	codec               BodyCodec
	now                 func() time.Time
	newCorrelationID    func() string
	correlationProperty string
	defaultProperties   map[string]interface{}
}

// NewMessageBuilder creates a new message builder
func NewMessageBuilder(options ...BuilderOption) *MessageBuilder {
	b := &MessageBuilder{
		extractor:           metadata.DefaultExtractor(),
		codec:               JSONCodec{},
		now:                 time.Now,
		newCorrelationID:    func() string { return uuid.New().String() },
		correlationProperty: DefaultCorrelationProperty,
		defaultProperties:   make(map[string]interface{}),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// CorrelationProperty returns the custom property name of the correlation id
func (b *MessageBuilder) CorrelationProperty() string {
	return b.correlationProperty
}

// Codec returns the body codec
func (b *MessageBuilder) Codec() BodyCodec {
	return b.codec
}

// BuildMessage creates an envelope for the payload.
// A non-empty correlationID is stored verbatim; otherwise a new one is generated.
// Metadata errors abort the build and are returned unchanged.
func (b *MessageBuilder) BuildMessage(payload interface{}, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	return b.build(payload, nil, correlationID, opts)
}

// BuildDelayedMessage creates an envelope scheduled for delivery after delay.
// Negative delays are not rejected; they yield a scheduled time in the past.
func (b *MessageBuilder) BuildDelayedMessage(payload interface{}, delay time.Duration, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	scheduled := b.now().UTC().Add(delay)
	return b.build(payload, &scheduled, correlationID, opts)
}

func (b *MessageBuilder) build(payload interface{}, scheduled *time.Time, correlationID string, opts []EnvelopeOption) (*contracts.Envelope, error) {
	messageID, err := b.extractor.GetIdentity(payload)
	if err != nil {
		return nil, err
	}
	label, err := b.extractor.GetLabel(payload)
	if err != nil {
		return nil, err
	}
	ttl, err := b.extractor.GetTimeToLive(payload)
	if err != nil {
		return nil, err
	}

	body, err := b.codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	envelope := &contracts.Envelope{
		MessageID:             messageID,
		Label:                 label,
		TimeToLive:            ttl,
		ScheduledDeliveryTime: scheduled,
		CustomProperties:      make(map[string]interface{}, len(b.defaultProperties)+1),
		ContentType:           b.codec.ContentType(),
		Body:                  body,
	}

	for k, v := range b.defaultProperties {
		envelope.CustomProperties[k] = v
	}

	for _, opt := range opts {
		opt(envelope)
	}

	// The correlation id is set last so options cannot replace it
	if envelope.CustomProperties == nil {
		envelope.CustomProperties = make(map[string]interface{}, 1)
	}
	if correlationID == "" {
		correlationID = b.newCorrelationID()
	}
	envelope.CustomProperties[b.correlationProperty] = correlationID

	return envelope, nil
}

// Decode unmarshals an envelope body into target
func (b *MessageBuilder) Decode(envelope *contracts.Envelope, target interface{}) error {
	if envelope == nil {
		return fmt.Errorf("envelope cannot be nil")
	}
	if target == nil {
		return fmt.Errorf("target cannot be nil")
	}

	if err := b.codec.Unmarshal(envelope.Body, target); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}

var defaultBuilder = NewMessageBuilder()

// BuildMessage creates an envelope with the default builder
func BuildMessage(payload interface{}, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	return defaultBuilder.BuildMessage(payload, correlationID, opts...)
}

// BuildDelayedMessage creates a delayed envelope with the default builder
func BuildDelayedMessage(payload interface{}, delay time.Duration, correlationID string, opts ...EnvelopeOption) (*contracts.Envelope, error) {
	return defaultBuilder.BuildDelayedMessage(payload, delay, correlationID, opts...)
}
