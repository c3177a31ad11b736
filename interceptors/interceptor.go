package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/fishbus-go/contracts"
)

// EnvelopeHandler handles an inbound envelope at the end of the interceptor chain
type EnvelopeHandler interface {
	Handle(ctx context.Context, envelope *contracts.Envelope) error
}

// EnvelopeHandlerFunc is a function adapter for EnvelopeHandler
type EnvelopeHandlerFunc func(ctx context.Context, envelope *contracts.Envelope) error

// Handle implements EnvelopeHandler
func (f EnvelopeHandlerFunc) Handle(ctx context.Context, envelope *contracts.Envelope) error {
	return f(ctx, envelope)
}

// Interceptor processes envelopes before they reach the final handler
type Interceptor interface {
	// Intercept processes an envelope and calls the next handler in the chain
	Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error

	// Name returns the interceptor name for logging and debugging
	Name() string
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(name string, fn func(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

// Intercept implements Interceptor
func (i *InterceptorFunc) Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error {
	return i.fn(ctx, envelope, next)
}

// Name implements Interceptor
func (i *InterceptorFunc) Name() string {
	return i.name
}

// InterceptorChain manages a chain of interceptors
type InterceptorChain struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewInterceptorChain creates a new interceptor chain
func NewInterceptorChain(logger *slog.Logger) *InterceptorChain {
	if logger == nil {
		logger = slog.Default()
	}

	return &InterceptorChain{
		interceptors: make([]Interceptor, 0),
		logger:       logger,
	}
}

// Add adds an interceptor to the chain
func (c *InterceptorChain) Add(interceptor Interceptor) *InterceptorChain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Names returns the interceptor names in execution order
func (c *InterceptorChain) Names() []string {
	names := make([]string, len(c.interceptors))
	for i, interceptor := range c.interceptors {
		names[i] = interceptor.Name()
	}
	return names
}

// Execute executes the interceptor chain
func (c *InterceptorChain) Execute(ctx context.Context, envelope *contracts.Envelope, finalHandler EnvelopeHandler) error {
	if len(c.interceptors) == 0 {
		return finalHandler.Handle(ctx, envelope)
	}

	// Build the chain in reverse order
	handler := finalHandler
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		currentHandler := handler
		handler = EnvelopeHandlerFunc(func(ctx context.Context, envelope *contracts.Envelope) error {
			return interceptor.Intercept(ctx, envelope, currentHandler)
		})
	}

	return handler.Handle(ctx, envelope)
}

// Built-in interceptors

// LoggingInterceptor logs envelope processing.
// Records are written with the handling context, so properties pushed by
// an earlier CorrelationInterceptor appear on every line.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor
func (i *LoggingInterceptor) Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error {
	start := time.Now()

	i.logger.InfoContext(ctx, "processing message",
		"messageId", envelope.ID(),
		"label", envelope.Label,
	)

	err := next.Handle(ctx, envelope)
	duration := time.Since(start)

	if err != nil {
		i.logger.ErrorContext(ctx, "message processing failed",
			"messageId", envelope.ID(),
			"label", envelope.Label,
			"duration", duration,
			"error", err,
		)
	} else {
		i.logger.InfoContext(ctx, "message processed successfully",
			"messageId", envelope.ID(),
			"label", envelope.Label,
			"duration", duration,
		)
	}

	return err
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}
