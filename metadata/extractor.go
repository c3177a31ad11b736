package metadata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/glimte/fishbus-go/contracts"
)

// Extractor reads message metadata from payload values
type Extractor struct {
	registry *Registry
}

// NewExtractor creates an extractor backed by the given registry.
// A nil registry gets a private one.
func NewExtractor(registry *Registry) *Extractor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Extractor{registry: registry}
}

// Registry returns the registry backing the extractor
func (x *Extractor) Registry() *Registry {
	return x.registry
}

// GetIdentity returns the value of the payload's identity field.
// A type without an identity field yields an empty string; a single field
// yields its current value, which is nil for a nil pointer.
// Strings are returned as is and exported fmt.Stringer fields through String.
// Other values, and Stringers held in unexported fields whose methods
// reflection cannot call, are formatted with fmt.Sprint; mark an exported
// field to get the String form of types such as uuid.UUID.
func (x *Extractor) GetIdentity(payload interface{}) (*string, error) {
	d, v, err := x.resolve(payload)
	if err != nil {
		return nil, err
	}
	if d.identityErr != nil {
		return nil, d.identityErr
	}
	if d.identity == nil {
		empty := ""
		return &empty, nil
	}

	field, err := v.FieldByIndexErr(d.identity)
	if err != nil {
		// nil embedded pointer on the path
		return nil, nil
	}
	return renderIdentity(field), nil
}

// GetLabel returns the label declared for the payload's type, falling back
// to the fully-qualified type name
func (x *Extractor) GetLabel(payload interface{}) (string, error) {
	d, _, err := x.resolve(payload)
	if err != nil {
		return "", err
	}
	if d.labelErr != nil {
		return "", d.labelErr
	}
	if d.hasLabel {
		return d.label, nil
	}
	return d.name, nil
}

// GetTimeToLive returns the value of the payload's time-to-live field.
// A field that is not a time.Duration yields nil rather than an error.
func (x *Extractor) GetTimeToLive(payload interface{}) (*time.Duration, error) {
	d, v, err := x.resolve(payload)
	if err != nil {
		return nil, err
	}
	if d.ttlErr != nil {
		return nil, d.ttlErr
	}
	if d.ttl == nil || d.ttlKind == ttlIncompatible {
		return nil, nil
	}

	field, err := v.FieldByIndexErr(d.ttl)
	if err != nil {
		return nil, nil
	}
	if d.ttlKind == ttlPointer {
		if field.IsNil() {
			return nil, nil
		}
		field = field.Elem()
	}
	ttl := time.Duration(field.Int())
	return &ttl, nil
}

// resolve returns the payload's descriptor and its dereferenced value
func (x *Extractor) resolve(payload interface{}) (*TypeDescriptor, reflect.Value, error) {
	if payload == nil {
		return nil, reflect.Value{}, contracts.ErrNilPayload
	}

	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, reflect.Value{}, contracts.ErrNilPayload
		}
		v = v.Elem()
	}

	d := x.registry.describeType(v.Type())
	if d.tagErr != nil {
		return nil, reflect.Value{}, d.tagErr
	}
	return d, v, nil
}

// renderIdentity converts an identity field to its string form
func renderIdentity(field reflect.Value) *string {
	for field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return nil
		}
		if s, ok := stringer(field); ok {
			return &s
		}
		field = field.Elem()
	}

	if field.Kind() == reflect.String {
		s := field.String()
		return &s
	}
	if s, ok := stringer(field); ok {
		return &s
	}
	// fmt renders the value held by a reflect.Value, exported or not
	s := fmt.Sprint(field)
	return &s
}

func stringer(field reflect.Value) (string, bool) {
	if !field.CanInterface() {
		return "", false
	}
	if s, ok := field.Interface().(fmt.Stringer); ok {
		return s.String(), true
	}
	return "", false
}
