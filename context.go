package recache

import "context"

type skipReadCtxKey struct{}

// WithSkipRead returns a context under which GetOrLoad bypasses the cached
// value entirely and always calls through to the loader, still serializing
// via the key gate. Matches the teacher's WithSkipRead/SkipRead pattern.
func WithSkipRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipReadCtxKey{}, true)
}

// SkipRead reports whether ctx was produced by WithSkipRead.
func SkipRead(ctx context.Context) bool {
	v, _ := ctx.Value(skipReadCtxKey{}).(bool)
	return v
}
