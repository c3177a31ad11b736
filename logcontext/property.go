package logcontext

import (
	"context"
	"fmt"
	"sync/atomic"
)

// contextKey is a type for context keys to avoid collisions
type contextKey struct{}

// frame is one pushed property. Frames form a chain from the innermost push
// to the outermost one; a released frame stays in the chain but is skipped.
type frame struct {
	name        string
	value       interface{}
	correlation bool
	parent      *frame
	released    atomic.Bool
}

// Property is a live logging property
type Property struct {
	Name  string
	Value interface{}
}

// Scope is the handle for one pushed property.
// Releasing it removes exactly that property; the zero Scope is a no-op.
type Scope struct {
	frame *frame
}

// Release removes the property pushed with this scope.
// Calling it more than once, or on a nil scope, does nothing.
func (s *Scope) Release() {
	if s == nil || s.frame == nil {
		return
	}
	s.frame.released.Store(true)
}

// Close implements io.Closer
func (s *Scope) Close() error {
	s.Release()
	return nil
}

// Released reports whether the scope no longer contributes a property
func (s *Scope) Released() bool {
	if s == nil || s.frame == nil {
		return true
	}
	return s.frame.released.Load()
}

// PushProperty adds a logging property to the context.
// The returned context carries the property until the scope is released.
func PushProperty(ctx context.Context, name string, value interface{}) (context.Context, *Scope) {
	return push(ctx, name, value, false)
}

func push(ctx context.Context, name string, value interface{}, correlation bool) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	f := &frame{
		name:        name,
		value:       value,
		correlation: correlation,
		parent:      top(ctx),
	}
	return context.WithValue(ctx, contextKey{}, f), &Scope{frame: f}
}

func top(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(contextKey{}).(*frame)
	return f
}

// Properties returns the live properties of the context, outermost first.
// When a name was pushed more than once the innermost live value wins.
func Properties(ctx context.Context) []Property {
	var props []Property
	seen := make(map[string]struct{})
	for f := top(ctx); f != nil; f = f.parent {
		if f.released.Load() {
			continue
		}
		if _, dup := seen[f.name]; dup {
			continue
		}
		seen[f.name] = struct{}{}
		props = append(props, Property{Name: f.name, Value: f.value})
	}

	for i, j := 0, len(props)-1; i < j; i, j = i+1, j-1 {
		props[i], props[j] = props[j], props[i]
	}
	return props
}

// Value returns the innermost live value pushed under name
func Value(ctx context.Context, name string) (interface{}, bool) {
	for f := top(ctx); f != nil; f = f.parent {
		if !f.released.Load() && f.name == name {
			return f.value, true
		}
	}
	return nil, false
}

// CorrelationID returns the innermost live correlation id pushed by a CorrelationPusher
func CorrelationID(ctx context.Context) (string, bool) {
	for f := top(ctx); f != nil; f = f.parent {
		if !f.released.Load() && f.correlation {
			return fmt.Sprint(f.value), true
		}
	}
	return "", false
}
