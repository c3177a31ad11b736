// Package interceptors provides a handler chain for inbound envelopes.
//
// Interceptors wrap the final EnvelopeHandler and run in the order they are
// added. The built-in CorrelationInterceptor pushes the inbound correlation
// id into the logging context for the duration of handling, so a
// LoggingInterceptor placed after it tags every record:
//
//	chain := interceptors.NewInterceptorChain(logger).
//		Add(interceptors.NewCorrelationInterceptor(pusher)).
//		Add(interceptors.NewLoggingInterceptor(logger))
//
//	err := subscriber.Subscribe(ctx, "orders",
//		interceptors.DeliveryHandler(chain, handler, logger),
//		messaging.SubscriptionOptions{PrefetchCount: 10})
//
// RetryInterceptor re-runs the inner chain under a retry policy before the
// delivery is rejected.
package interceptors
