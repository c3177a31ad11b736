package metadata

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test payload types for extractor tests
type messageWithMessageID struct {
	ID   string `fishbus:"messageid"`
	Data string `json:"data"`
}

type messageWithNullableID struct {
	ID *string `fishbus:"messageid"`
}

type messageWithTooManyMessageIDs struct {
	ID        *string `fishbus:"messageid"`
	AnotherID *string `fishbus:"messageid"`
}

type messageWithoutMessageID struct {
	Data string
}

type messageWithUUID struct {
	ID uuid.UUID `fishbus:"messageid"`
}

type messageWithPrivateUUID struct {
	id uuid.UUID `fishbus:"messageid"`
}

type messageWithPrivateID struct {
	id string `fishbus:"messageid"`
}

type messageWithNumericID struct {
	Sequence int64 `fishbus:"messageid"`
}

type identityBase struct {
	ID string `fishbus:"messageid"`
}

type messageWithEmbeddedID struct {
	identityBase
	Data string
}

type messageWithEmbeddedPointerID struct {
	*identityBase
}

type messageWithLabel struct {
	_    struct{} `fishbus:"label=A.Custom.Message.Label"`
	Data string
}

type messageWithTwoLabels struct {
	_     struct{} `fishbus:"label=first"`
	Other string   `fishbus:"label=second"`
}

type messageA struct {
	Data string
}

type validMessageWithTimeToLive struct {
	TimeToLive time.Duration `fishbus:"ttl"`
}

type messageWithTimeToLivePointer struct {
	TimeToLive *time.Duration `fishbus:"ttl"`
}

type invalidMessageWithTwoTimeToLives struct {
	TimeToLive  time.Duration `fishbus:"ttl"`
	TimeToLive2 time.Duration `fishbus:"ttl"`
}

type invalidMessageWithTimeToLiveAsString struct {
	TimeToLiveAsString string `fishbus:"ttl"`
}

type messageWithAmbiguousIDAndValidTTL struct {
	ID         string        `fishbus:"messageid"`
	OtherID    string        `fishbus:"messageid"`
	TimeToLive time.Duration `fishbus:"ttl"`
}

type messageWithUnknownMarker struct {
	ID string `fishbus:"identity"`
}

func TestGetIdentity(t *testing.T) {
	x := NewExtractor(NewRegistry())

	t.Run("returns marked field value", func(t *testing.T) {
		id, err := x.GetIdentity(&messageWithMessageID{ID: "messageId"})

		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, "messageId", *id)
	})

	t.Run("returns value for non-pointer payload", func(t *testing.T) {
		id, err := x.GetIdentity(messageWithMessageID{ID: "by-value"})

		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, "by-value", *id)
	})

	t.Run("returns nil when marked field is nil", func(t *testing.T) {
		id, err := x.GetIdentity(&messageWithNullableID{})

		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("returns empty string without marker", func(t *testing.T) {
		id, err := x.GetIdentity(&messageWithoutMessageID{})

		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, "", *id)
	})

	t.Run("fails with more than one marker", func(t *testing.T) {
		first, second := "id", "anotherId"
		id, err := x.GetIdentity(&messageWithTooManyMessageIDs{ID: &first, AnotherID: &second})

		assert.Nil(t, id)
		assert.True(t, errors.Is(err, contracts.ErrAmbiguousMetadata))

		var ambiguous *contracts.AmbiguousMetadataError
		require.True(t, errors.As(err, &ambiguous))
		assert.Equal(t, contracts.MarkerMessageID, ambiguous.Marker)
		assert.Equal(t, []string{"ID", "AnotherID"}, ambiguous.Fields)
	})

	t.Run("fails with more than one marker even when values are nil", func(t *testing.T) {
		_, err := x.GetIdentity(&messageWithTooManyMessageIDs{})

		assert.ErrorIs(t, err, contracts.ErrAmbiguousMetadata)
	})

	t.Run("uses String for stringer fields", func(t *testing.T) {
		expected := uuid.New()
		id, err := x.GetIdentity(&messageWithUUID{ID: expected})

		require.NoError(t, err)
		assert.Equal(t, expected.String(), *id)
	})

	t.Run("unexported fields are formatted without String", func(t *testing.T) {
		expected := uuid.New()
		id, err := x.GetIdentity(&messageWithPrivateUUID{id: expected})

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint([16]byte(expected)), *id)

		id, err = x.GetIdentity(&messageWithPrivateID{id: "private"})
		require.NoError(t, err)
		assert.Equal(t, "private", *id)
	})

	t.Run("formats other kinds", func(t *testing.T) {
		id, err := x.GetIdentity(messageWithNumericID{Sequence: 42})

		require.NoError(t, err)
		assert.Equal(t, "42", *id)
	})

	t.Run("reads promoted fields", func(t *testing.T) {
		msg := &messageWithEmbeddedID{identityBase: identityBase{ID: "embedded"}}
		id, err := x.GetIdentity(msg)

		require.NoError(t, err)
		assert.Equal(t, "embedded", *id)
	})

	t.Run("returns nil through nil embedded pointer", func(t *testing.T) {
		id, err := x.GetIdentity(&messageWithEmbeddedPointerID{})

		assert.NoError(t, err)
		assert.Nil(t, id)
	})

	t.Run("fails with nil payload", func(t *testing.T) {
		var msg *messageWithMessageID

		_, err := x.GetIdentity(msg)
		assert.ErrorIs(t, err, contracts.ErrNilPayload)

		_, err = x.GetIdentity(nil)
		assert.ErrorIs(t, err, contracts.ErrNilPayload)
	})

	t.Run("does not modify payload", func(t *testing.T) {
		msg := &messageWithMessageID{ID: "keep", Data: "data"}
		_, err := x.GetIdentity(msg)

		require.NoError(t, err)
		assert.Equal(t, &messageWithMessageID{ID: "keep", Data: "data"}, msg)
	})
}

func TestGetLabel(t *testing.T) {
	t.Run("uses label marker", func(t *testing.T) {
		x := NewExtractor(nil)

		label, err := x.GetLabel(&messageWithLabel{})

		require.NoError(t, err)
		assert.Equal(t, "A.Custom.Message.Label", label)
	})

	t.Run("falls back to fully-qualified type name", func(t *testing.T) {
		x := NewExtractor(nil)

		label, err := x.GetLabel(&messageA{})
		require.NoError(t, err)
		assert.Equal(t, "github.com/glimte/fishbus-go/metadata.messageA", label)

		label, err = x.GetLabel(messageA{})
		require.NoError(t, err)
		assert.Equal(t, "github.com/glimte/fishbus-go/metadata.messageA", label)
	})

	t.Run("uses type string for builtin types", func(t *testing.T) {
		x := NewExtractor(nil)

		label, err := x.GetLabel("plain text")
		require.NoError(t, err)
		assert.Equal(t, "string", label)

		label, err = x.GetLabel(map[string]int{"a": 1})
		require.NoError(t, err)
		assert.Equal(t, "map[string]int", label)
	})

	t.Run("uses label supplied at registration", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(messageA{}, WithLabel("orders.created")))

		label, err := NewExtractor(registry).GetLabel(&messageA{})

		require.NoError(t, err)
		assert.Equal(t, "orders.created", label)
	})

	t.Run("fails with more than one label", func(t *testing.T) {
		x := NewExtractor(nil)

		_, err := x.GetLabel(&messageWithTwoLabels{})

		var ambiguous *contracts.AmbiguousMetadataError
		require.ErrorAs(t, err, &ambiguous)
		assert.Equal(t, contracts.MarkerLabel, ambiguous.Marker)
	})
}

func TestGetTimeToLive(t *testing.T) {
	x := NewExtractor(NewRegistry())

	t.Run("returns marked duration", func(t *testing.T) {
		expected := 6*time.Hour + 6*time.Minute + 6*time.Second
		ttl, err := x.GetTimeToLive(&validMessageWithTimeToLive{TimeToLive: expected})

		require.NoError(t, err)
		require.NotNil(t, ttl)
		assert.Equal(t, expected, *ttl)
	})

	t.Run("returns marked duration pointer", func(t *testing.T) {
		expected := time.Minute
		ttl, err := x.GetTimeToLive(&messageWithTimeToLivePointer{TimeToLive: &expected})

		require.NoError(t, err)
		require.NotNil(t, ttl)
		assert.Equal(t, expected, *ttl)

		ttl, err = x.GetTimeToLive(&messageWithTimeToLivePointer{})
		assert.NoError(t, err)
		assert.Nil(t, ttl)
	})

	t.Run("fails with more than one marker", func(t *testing.T) {
		ttl := 6 * time.Hour
		msg := &invalidMessageWithTwoTimeToLives{TimeToLive: ttl, TimeToLive2: ttl}

		value, err := x.GetTimeToLive(msg)

		assert.Nil(t, value)
		assert.ErrorIs(t, err, contracts.ErrAmbiguousMetadata)
	})

	t.Run("returns nil for incompatible field type", func(t *testing.T) {
		msg := &invalidMessageWithTimeToLiveAsString{TimeToLiveAsString: "2019-01-01"}

		ttl, err := x.GetTimeToLive(msg)

		assert.NoError(t, err)
		assert.Nil(t, ttl)
	})

	t.Run("returns nil without marker", func(t *testing.T) {
		ttl, err := x.GetTimeToLive(&messageA{})

		assert.NoError(t, err)
		assert.Nil(t, ttl)
	})
}

func TestQueriesAreIndependent(t *testing.T) {
	x := NewExtractor(NewRegistry())
	msg := &messageWithAmbiguousIDAndValidTTL{TimeToLive: time.Second}

	_, err := x.GetIdentity(msg)
	assert.ErrorIs(t, err, contracts.ErrAmbiguousMetadata)

	ttl, err := x.GetTimeToLive(msg)
	require.NoError(t, err)
	assert.Equal(t, time.Second, *ttl)

	label, err := x.GetLabel(msg)
	require.NoError(t, err)
	assert.Equal(t, "github.com/glimte/fishbus-go/metadata.messageWithAmbiguousIDAndValidTTL", label)
}

func TestUnknownMarker(t *testing.T) {
	x := NewExtractor(NewRegistry())

	_, err := x.GetLabel(&messageWithUnknownMarker{})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), `unknown marker "identity"`)
}

func TestPackageLevelHelpers(t *testing.T) {
	id, err := GetIdentity(&messageWithMessageID{ID: "global"})
	require.NoError(t, err)
	assert.Equal(t, "global", *id)

	label, err := GetLabel(&messageWithLabel{})
	require.NoError(t, err)
	assert.Equal(t, "A.Custom.Message.Label", label)

	ttl, err := GetTimeToLive(&validMessageWithTimeToLive{TimeToLive: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, *ttl)

	assert.Same(t, DefaultRegistry(), DefaultExtractor().Registry())
}
