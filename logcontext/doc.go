// Package logcontext carries logging properties through a context.Context.
//
// PushProperty adds a property and returns a Scope; releasing the scope removes
// exactly that property again. Handler renders the live properties of a record's
// context on any slog.Handler, so every line logged while handling a message
// can be grouped:
//
//	ctx, scope := pusher.Push(ctx, envelope)
//	defer scope.Release()
//	logger.InfoContext(ctx, "handling message")
//
// Each goroutine handling a message works on its own context chain, so no
// locking is needed between concurrent handlers.
package logcontext
