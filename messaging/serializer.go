package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/glimte/fishbus-go/contracts"
)

// EnvelopeSerializer handles envelope serialization for transports that
// carry the whole envelope as one opaque value
type EnvelopeSerializer interface {
	Serialize(envelope *contracts.Envelope) ([]byte, error)
	Deserialize(data []byte) (*contracts.Envelope, error)
}

// JSONEnvelopeSerializer provides JSON serialization for envelopes
type JSONEnvelopeSerializer struct{}

// NewJSONEnvelopeSerializer creates a new JSON envelope serializer
func NewJSONEnvelopeSerializer() *JSONEnvelopeSerializer {
	return &JSONEnvelopeSerializer{}
}

// Serialize serializes an envelope to JSON
func (s *JSONEnvelopeSerializer) Serialize(envelope *contracts.Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

// Deserialize deserializes JSON data to an envelope
func (s *JSONEnvelopeSerializer) Deserialize(data []byte) (*contracts.Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var envelope contracts.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &envelope, nil
}
