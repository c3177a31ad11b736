package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/internal/reliability"
)

const (
	defaultRetryInitial = 100 * time.Millisecond
	defaultRetryMax     = 5 * time.Second
)

// RetryInterceptor re-runs the rest of the chain while the policy allows.
// Wrap an error with reliability.Permanent to fail without retrying.
type RetryInterceptor struct {
	policy reliability.RetryPolicy
	logger *slog.Logger
}

// NewRetryInterceptor creates a retry interceptor. A nil policy retries three
// times with exponential backoff starting at 100ms.
func NewRetryInterceptor(policy reliability.RetryPolicy, logger *slog.Logger) *RetryInterceptor {
	if policy == nil {
		policy = reliability.NewExponentialBackoff(defaultRetryInitial, defaultRetryMax, 2.0, 3)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryInterceptor{policy: policy, logger: logger}
}

// Intercept implements Interceptor
func (i *RetryInterceptor) Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error {
	attempt := 0
	return reliability.Retry(ctx, i.policy, func() error {
		attempt++
		if attempt > 1 {
			i.logger.WarnContext(ctx, "retrying message",
				"messageId", envelope.ID(),
				"label", envelope.Label,
				"attempt", attempt,
			)
		}
		return next.Handle(ctx, envelope)
	})
}

// Name implements Interceptor
func (i *RetryInterceptor) Name() string {
	return "RetryInterceptor"
}
