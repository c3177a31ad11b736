package interceptors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/fishbus-go/contracts"
)

// MessageFilter defines the interface for envelope filtering
type MessageFilter interface {
	// ShouldProcess returns true if the envelope should be processed
	ShouldProcess(ctx context.Context, envelope *contracts.Envelope) (bool, error)
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(ctx context.Context, envelope *contracts.Envelope) (bool, error)

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(ctx context.Context, envelope *contracts.Envelope) (bool, error) {
	return f(ctx, envelope)
}

// SkipBehavior defines what happens when an envelope is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the envelope without error
	SkipSilently SkipBehavior = iota
	// SkipWithError returns an error when the envelope is filtered
	SkipWithError
	// SkipWithLog logs that the envelope was skipped
	SkipWithLog
)

// FilteringInterceptor filters envelopes based on conditions
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior, logger *slog.Logger) *FilteringInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       logger,
	}
}

// Intercept implements Interceptor
func (i *FilteringInterceptor) Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error {
	shouldProcess, err := i.filter.ShouldProcess(ctx, envelope)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}

	if !shouldProcess {
		switch i.skipBehavior {
		case SkipWithError:
			return fmt.Errorf("message filtered: label=%s, id=%s", envelope.Label, envelope.ID())
		case SkipWithLog:
			i.logger.InfoContext(ctx, "message skipped",
				"messageId", envelope.ID(),
				"label", envelope.Label,
			)
			return nil
		default:
			return nil
		}
	}

	return next.Handle(ctx, envelope)
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	filters []MessageFilter
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(filters ...MessageFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

// ShouldProcess implements MessageFilter - all filters must return true
func (f *CompositeFilter) ShouldProcess(ctx context.Context, envelope *contracts.Envelope) (bool, error) {
	for _, filter := range f.filters {
		shouldProcess, err := filter.ShouldProcess(ctx, envelope)
		if err != nil {
			return false, err
		}
		if !shouldProcess {
			return false, nil
		}
	}
	return true, nil
}

// LabelFilter only allows envelopes with specific labels
type LabelFilter struct {
	allowed map[string]bool
}

// NewLabelFilter creates a filter that only allows the given labels
func NewLabelFilter(labels ...string) *LabelFilter {
	allowed := make(map[string]bool, len(labels))
	for _, label := range labels {
		allowed[label] = true
	}
	return &LabelFilter{allowed: allowed}
}

// ShouldProcess implements MessageFilter
func (f *LabelFilter) ShouldProcess(ctx context.Context, envelope *contracts.Envelope) (bool, error) {
	return f.allowed[envelope.Label], nil
}

// PropertyFilter only allows envelopes whose custom property equals a value
type PropertyFilter struct {
	key      string
	expected interface{}
}

// NewPropertyFilter creates a filter on a custom property
func NewPropertyFilter(key string, expected interface{}) *PropertyFilter {
	return &PropertyFilter{key: key, expected: expected}
}

// ShouldProcess implements MessageFilter
func (f *PropertyFilter) ShouldProcess(ctx context.Context, envelope *contracts.Envelope) (bool, error) {
	value, exists := envelope.Property(f.key)
	if !exists {
		return false, nil
	}
	return value == f.expected, nil
}
