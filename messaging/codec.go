package messaging

import (
	"encoding/json"
)

// BodyCodec encodes payloads into envelope bodies
type BodyCodec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	ContentType() string
}

// JSONCodec is the default body codec
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (JSONCodec) ContentType() string                        { return "application/json" }
