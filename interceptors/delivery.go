package interceptors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/fishbus-go/messaging"
)

// DeliveryHandler adapts a chain and final handler to a transport subscription.
// Successful handling acknowledges the delivery; a failure rejects it without
// requeue and the handling error is returned.
func DeliveryHandler(chain *InterceptorChain, handler EnvelopeHandler, logger *slog.Logger) messaging.DeliveryHandler {
	if chain == nil {
		chain = NewInterceptorChain(logger)
	}
	if logger == nil {
		logger = chain.logger
	}

	return func(ctx context.Context, delivery messaging.TransportDelivery) error {
		envelope := delivery.Envelope()

		if err := chain.Execute(ctx, envelope, handler); err != nil {
			if rejectErr := delivery.Reject(false); rejectErr != nil {
				logger.ErrorContext(ctx, "failed to reject message",
					"messageId", envelope.ID(),
					"error", rejectErr,
				)
			}
			return fmt.Errorf("handler failed for %s: %w", envelope.Label, err)
		}

		if err := delivery.Acknowledge(); err != nil {
			return fmt.Errorf("failed to acknowledge %s: %w", envelope.ID(), err)
		}
		return nil
	}
}
