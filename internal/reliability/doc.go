// Package reliability holds the retry policies used around message handlers.
//
// A policy decides, per attempt and error, whether to try again and how long
// to wait. Retry runs a function under a policy until it succeeds, the policy
// gives up or the context ends:
//
//	policy := reliability.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, 3)
//	err := reliability.Retry(ctx, policy, func() error {
//	    return handle(ctx, envelope)
//	})
//
// Errors wrapped with Permanent are never retried.
package reliability
