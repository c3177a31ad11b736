package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeAccessors(t *testing.T) {
	t.Run("nil envelope", func(t *testing.T) {
		var e *Envelope
		_, ok := e.Property("x")
		assert.False(t, ok)
		assert.Equal(t, "", e.ID())
		assert.False(t, e.IsScheduled())
		_, ok = e.ExpiresAt(time.Now())
		assert.False(t, ok)
	})

	t.Run("properties", func(t *testing.T) {
		e := &Envelope{CustomProperties: map[string]interface{}{"s": "v", "n": 3}}

		value, ok := e.StringProperty("s")
		assert.True(t, ok)
		assert.Equal(t, "v", value)

		_, ok = e.StringProperty("n")
		assert.False(t, ok)
		_, ok = e.StringProperty("missing")
		assert.False(t, ok)
	})

	t.Run("identity and schedule", func(t *testing.T) {
		id := "m-1"
		at := time.Now().UTC()
		ttl := time.Minute
		e := &Envelope{MessageID: &id, ScheduledDeliveryTime: &at, TimeToLive: &ttl}

		assert.Equal(t, "m-1", e.ID())
		assert.True(t, e.IsScheduled())
		expires, ok := e.ExpiresAt(at)
		assert.True(t, ok)
		assert.Equal(t, at.Add(time.Minute), expires)
	})
}

func TestAmbiguousMetadataError(t *testing.T) {
	err := &AmbiguousMetadataError{Type: "pkg.Order", Marker: MarkerMessageID, Fields: []string{"ID", "Other"}}

	assert.Equal(t, `fishbus: type pkg.Order declares 2 "messageid" markers (ID, Other), at most one is allowed`, err.Error())
	assert.True(t, errors.Is(err, ErrAmbiguousMetadata))
	assert.True(t, errors.Is(fmt.Errorf("build: %w", err), ErrAmbiguousMetadata))
	assert.False(t, errors.Is(err, ErrNilPayload))
}
