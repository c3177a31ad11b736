package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"go.uber.org/multierr"
)

// registrationSource names a label supplied with WithLabel in ambiguity errors
const registrationSource = "<registration>"

var durationType = reflect.TypeOf(time.Duration(0))

type ttlKind int

const (
	ttlIncompatible ttlKind = iota
	ttlValue
	ttlPointer
)

// TypeDescriptor holds the resolved metadata declarations of one payload type.
// Each facet keeps its own error so the three queries stay independent.
type TypeDescriptor struct {
	typ        reflect.Type
	name       string
	registered bool

	label    string
	hasLabel bool
	labelErr error

	identity    []int
	identityErr error

	ttl     []int
	ttlKind ttlKind
	ttlErr  error

	// tagErr is set when a fishbus tag cannot be parsed; it fails every query
	tagErr error
}

// Type returns the described payload type
func (d *TypeDescriptor) Type() reflect.Type {
	return d.typ
}

// Name returns the fully-qualified type name
func (d *TypeDescriptor) Name() string {
	return d.name
}

// Label returns the configured label and whether one was declared
func (d *TypeDescriptor) Label() (string, bool) {
	return d.label, d.hasLabel
}

// HasIdentity reports whether exactly one identity field is declared
func (d *TypeDescriptor) HasIdentity() bool {
	return d.identity != nil && d.identityErr == nil
}

// HasTimeToLive reports whether exactly one time-to-live field is declared
func (d *TypeDescriptor) HasTimeToLive() bool {
	return d.ttl != nil && d.ttlErr == nil
}

// Err returns every declaration error of the type combined
func (d *TypeDescriptor) Err() error {
	return multierr.Combine(d.tagErr, d.identityErr, d.labelErr, d.ttlErr)
}

// RegisterOption configures a type registration
type RegisterOption func(*registerOptions)

type registerOptions struct {
	label    string
	hasLabel bool
}

// WithLabel declares the routing label of a type at registration time
func WithLabel(label string) RegisterOption {
	return func(o *registerOptions) {
		o.label = label
		o.hasLabel = true
	}
}

// Registry resolves and caches type descriptors.
// Types can be registered up front so declaration mistakes surface at startup;
// unregistered types are described on first use.
type Registry struct {
	descriptors map[reflect.Type]*TypeDescriptor
	mu          sync.RWMutex
}

// NewRegistry creates a new metadata registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[reflect.Type]*TypeDescriptor),
	}
}

// Register validates the declarations of the sample's type and stores them
func (r *Registry) Register(sample interface{}, options ...RegisterOption) error {
	if sample == nil {
		return contracts.ErrNilPayload
	}

	var opts registerOptions
	for _, opt := range options {
		opt(&opts)
	}
	if opts.hasLabel && opts.label == "" {
		return fmt.Errorf("fishbus: label for %s cannot be empty", typeName(baseType(reflect.TypeOf(sample))))
	}

	t := baseType(reflect.TypeOf(sample))
	d := describe(t, opts)
	if err := d.Err(); err != nil {
		return err
	}
	d.registered = true

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.descriptors[t]; exists && existing.registered {
		if existing.label == d.label && existing.hasLabel == d.hasLabel {
			// Same declaration, ignore
			return nil
		}
		return fmt.Errorf("fishbus: type %s already registered with a different label", d.name)
	}

	r.descriptors[t] = d
	return nil
}

// IsRegistered checks if the sample's type was registered explicitly
func (r *Registry) IsRegistered(sample interface{}) bool {
	if sample == nil {
		return false
	}
	t := baseType(reflect.TypeOf(sample))

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.descriptors[t]
	return exists && d.registered
}

// ListTypes returns the names of all explicitly registered types
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.registered {
			names = append(names, d.name)
		}
	}
	sort.Strings(names)
	return names
}

// Describe returns the descriptor for a payload's type, describing it on first use
func (r *Registry) Describe(payload interface{}) (*TypeDescriptor, error) {
	if payload == nil {
		return nil, contracts.ErrNilPayload
	}
	return r.describeType(baseType(reflect.TypeOf(payload))), nil
}

func (r *Registry) describeType(t reflect.Type) *TypeDescriptor {
	r.mu.RLock()
	d, exists := r.descriptors[t]
	r.mu.RUnlock()
	if exists {
		return d
	}

	d = describe(t, registerOptions{})

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.descriptors[t]; exists {
		return existing
	}
	r.descriptors[t] = d
	return d
}

// describe resolves the marker declarations of t
func describe(t reflect.Type, opts registerOptions) *TypeDescriptor {
	d := &TypeDescriptor{
		typ:  t,
		name: typeName(t),
	}

	var labelFields, identityFields, ttlFields []string
	if opts.hasLabel {
		d.label = opts.label
		labelFields = append(labelFields, registrationSource)
	}

	if t.Kind() == reflect.Struct {
		for _, field := range reflect.VisibleFields(t) {
			tag, ok := field.Tag.Lookup(TagKey)
			if !ok {
				continue
			}
			m, err := parseMarker(tag)
			if err != nil {
				d.tagErr = multierr.Append(d.tagErr, fmt.Errorf("fishbus: field %s.%s: %w", d.name, field.Name, err))
				continue
			}

			switch m.kind {
			case markerMessageID:
				identityFields = append(identityFields, field.Name)
				if d.identity == nil {
					d.identity = field.Index
				}
			case markerTimeToLive:
				ttlFields = append(ttlFields, field.Name)
				if d.ttl == nil {
					d.ttl = field.Index
					d.ttlKind = classifyTimeToLive(field.Type)
				}
			case markerLabel:
				labelFields = append(labelFields, field.Name)
				if len(labelFields) == 1 {
					d.label = m.label
				}
			}
		}
	}

	d.hasLabel = len(labelFields) > 0
	if len(identityFields) > 1 {
		d.identityErr = ambiguous(d.name, contracts.MarkerMessageID, identityFields)
	}
	if len(labelFields) > 1 {
		d.labelErr = ambiguous(d.name, contracts.MarkerLabel, labelFields)
	}
	if len(ttlFields) > 1 {
		d.ttlErr = ambiguous(d.name, contracts.MarkerTimeToLive, ttlFields)
	}

	return d
}

func ambiguous(typeName, marker string, fields []string) error {
	return &contracts.AmbiguousMetadataError{
		Type:   typeName,
		Marker: marker,
		Fields: fields,
	}
}

func classifyTimeToLive(t reflect.Type) ttlKind {
	switch {
	case t == durationType:
		return ttlValue
	case t.Kind() == reflect.Ptr && t.Elem() == durationType:
		return ttlPointer
	default:
		return ttlIncompatible
	}
}

// baseType strips pointer indirections
func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// typeName returns the fully-qualified name used as the fallback label
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
