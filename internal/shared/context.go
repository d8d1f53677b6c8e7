package shared

import "context"

// DefaultActor is recorded when a caller does not name itself.
const DefaultActor = "api"

// Identity is the caller scope attached to every API request.
type Identity struct {
	GroupID int64
	Actor   string
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok && id.GroupID > 0
}

// ActorFromContext returns the caller name, falling back to DefaultActor.
func ActorFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.Actor != "" {
		return id.Actor
	}
	return DefaultActor
}
