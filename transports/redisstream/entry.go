package redisstream

import (
	"fmt"
	"strconv"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/messaging"
)

// Stream entry fields
const (
	fieldEnvelope = "envelope"
	fieldSentAt   = "sentAt"
)

// scheduleKey returns the sorted set holding envelopes scheduled for stream
func scheduleKey(stream string) string {
	return stream + ":scheduled"
}

// encodeEntry builds the XADD field map for an envelope
func encodeEntry(serializer messaging.EnvelopeSerializer, envelope *contracts.Envelope, sentAt time.Time) (map[string]interface{}, error) {
	data, err := serializer.Serialize(envelope)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		fieldEnvelope: data,
		fieldSentAt:   sentAt.UnixMilli(),
	}, nil
}

// decodeEntry restores an envelope and its send time from stream entry values
func decodeEntry(serializer messaging.EnvelopeSerializer, values map[string]interface{}) (*contracts.Envelope, time.Time, error) {
	raw, ok := values[fieldEnvelope].(string)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("entry has no %s field", fieldEnvelope)
	}

	envelope, err := serializer.Deserialize([]byte(raw))
	if err != nil {
		return nil, time.Time{}, err
	}

	var sentAt time.Time
	if text, ok := values[fieldSentAt].(string); ok {
		if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
			sentAt = time.UnixMilli(ms).UTC()
		}
	}

	return envelope, sentAt, nil
}

// expired reports whether an envelope outlived its time-to-live.
// Entries without a send time never expire.
func expired(envelope *contracts.Envelope, sentAt, now time.Time) bool {
	if sentAt.IsZero() {
		return false
	}
	expiresAt, ok := envelope.ExpiresAt(sentAt)
	return ok && !now.Before(expiresAt)
}
