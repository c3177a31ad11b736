package interceptors

import (
	"context"

	"github.com/glimte/fishbus-go/contracts"
	"github.com/glimte/fishbus-go/logcontext"
)

// CorrelationInterceptor pushes the inbound correlation id into the logging
// context for the rest of the chain. The pushed property is released when
// the chain returns, including on error or panic.
type CorrelationInterceptor struct {
	pusher *logcontext.CorrelationPusher
}

// NewCorrelationInterceptor creates a new correlation interceptor.
// A nil pusher disables correlation logging.
func NewCorrelationInterceptor(pusher *logcontext.CorrelationPusher) *CorrelationInterceptor {
	if pusher == nil {
		pusher = logcontext.NewCorrelationPusher(false, nil)
	}
	return &CorrelationInterceptor{pusher: pusher}
}

// Intercept implements Interceptor
func (i *CorrelationInterceptor) Intercept(ctx context.Context, envelope *contracts.Envelope, next EnvelopeHandler) error {
	ctx, scope := i.pusher.Push(ctx, envelope)
	defer scope.Release()

	return next.Handle(ctx, envelope)
}

// Name implements Interceptor
func (i *CorrelationInterceptor) Name() string {
	return "CorrelationInterceptor"
}
