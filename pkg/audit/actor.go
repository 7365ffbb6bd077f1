package audit

import "context"

type actorKey struct{}

// SystemActor is recorded when no authenticated principal is attached
// to the context, e.g. events produced by internal timers.
const SystemActor = "system"

// WithActor returns a context carrying the authenticated principal
// that subsequent audit records should be attributed to.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the principal set by WithActor, or
// SystemActor when none is present.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
