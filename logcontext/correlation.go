package logcontext

import (
	"context"
	"fmt"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/google/uuid"
)

const (
	// DefaultLogPropertyName is the logging property carrying the correlation id
	DefaultLogPropertyName = "CorrelationId"

	// DefaultMessagePropertyName is the envelope custom property carrying the correlation id
	DefaultMessagePropertyName = "logCorrelationId"
)

// CorrelationOptions configures a CorrelationPusher
type CorrelationOptions struct {
	// LogPropertyName defaults to DefaultLogPropertyName
	LogPropertyName string
	// MessagePropertyName defaults to DefaultMessagePropertyName
	MessagePropertyName string
	// OnCorrelationID, when set, receives the string form of every correlation id pushed
	OnCorrelationID func(correlationID string)
}

// CorrelationPusher pushes the correlation id of inbound envelopes into the logging context.
// Its configuration is fixed at construction, so one pusher can serve concurrent handlers.
type CorrelationPusher struct {
	enabled             bool
	logPropertyName     string
	messagePropertyName string
	onCorrelationID     func(string)
}

// NewCorrelationPusher creates a pusher. A disabled pusher hands out no-op scopes.
// A nil opts uses the defaults.
func NewCorrelationPusher(enabled bool, opts *CorrelationOptions) *CorrelationPusher {
	p := &CorrelationPusher{
		enabled:             enabled,
		logPropertyName:     DefaultLogPropertyName,
		messagePropertyName: DefaultMessagePropertyName,
	}
	if opts == nil {
		return p
	}

	if opts.LogPropertyName != "" {
		p.logPropertyName = opts.LogPropertyName
	}
	if opts.MessagePropertyName != "" {
		p.messagePropertyName = opts.MessagePropertyName
	}
	p.onCorrelationID = opts.OnCorrelationID
	return p
}

// Enabled reports whether the pusher modifies the logging context
func (p *CorrelationPusher) Enabled() bool {
	return p.enabled
}

// LogPropertyName returns the logging property name
func (p *CorrelationPusher) LogPropertyName() string {
	return p.logPropertyName
}

// MessagePropertyName returns the envelope property name
func (p *CorrelationPusher) MessagePropertyName() string {
	return p.messagePropertyName
}

// Push adds the envelope's correlation id to the logging context.
// An envelope without the property gets a freshly generated id. The caller
// must release the returned scope once handling finishes, typically with defer.
func (p *CorrelationPusher) Push(ctx context.Context, envelope *contracts.Envelope) (context.Context, *Scope) {
	if !p.enabled {
		return ctx, &Scope{}
	}

	correlationID, exists := envelope.Property(p.messagePropertyName)
	if !exists || correlationID == nil {
		correlationID = uuid.New().String()
	}

	if p.onCorrelationID != nil {
		p.onCorrelationID(fmt.Sprint(correlationID))
	}

	return push(ctx, p.logPropertyName, correlationID, true)
}

// Handle runs fn with the envelope's correlation id pushed, releasing it
// when fn returns or panics
func (p *CorrelationPusher) Handle(ctx context.Context, envelope *contracts.Envelope, fn func(ctx context.Context) error) error {
	ctx, scope := p.Push(ctx, envelope)
	defer scope.Release()

	return fn(ctx)
}
