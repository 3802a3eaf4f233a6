package shared

import "context"

// Actor describes the authenticated identity performing a request.
// It is materialized from gateway headers by the app middleware; the engine
// never reads ambient session state.
type Actor struct {
	ID         int64
	Role       string
	TenantID   string
	SystemWide bool
}

// Valid reports whether the actor carries a usable identity.
func (a Actor) Valid() bool {
	return a.ID > 0 && a.Role != ""
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned when none is present.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
