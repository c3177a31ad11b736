package contracts

import (
	"time"
)

// Envelope is the outbound unit handed to a transport.
// It is fully populated by the builder and must not be modified afterwards.
type Envelope struct {
	MessageID             *string                `json:"messageId,omitempty"`
	Label                 string                 `json:"label"`
	TimeToLive            *time.Duration         `json:"timeToLive,omitempty"`
	ScheduledDeliveryTime *time.Time             `json:"scheduledDeliveryTime,omitempty"`
	CustomProperties      map[string]interface{} `json:"customProperties,omitempty"`
	ContentType           string                 `json:"contentType,omitempty"`
	Body                  []byte                 `json:"body"`
}

// Property returns a custom property
func (e *Envelope) Property(key string) (interface{}, bool) {
	if e == nil || e.CustomProperties == nil {
		return nil, false
	}
	value, exists := e.CustomProperties[key]
	return value, exists
}

// StringProperty returns a custom property when it holds a string
func (e *Envelope) StringProperty(key string) (string, bool) {
	value, exists := e.Property(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// ID returns the message identity, or an empty string when none is set
func (e *Envelope) ID() string {
	if e == nil || e.MessageID == nil {
		return ""
	}
	return *e.MessageID
}

// IsScheduled reports whether the envelope requests delayed delivery
func (e *Envelope) IsScheduled() bool {
	return e != nil && e.ScheduledDeliveryTime != nil
}

// ExpiresAt returns the absolute expiry relative to the given send time
func (e *Envelope) ExpiresAt(sentAt time.Time) (time.Time, bool) {
	if e == nil || e.TimeToLive == nil {
		return time.Time{}, false
	}
	return sentAt.Add(*e.TimeToLive), true
}
