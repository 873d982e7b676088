package history

import "context"

// Subject is the entity a history record pertains to.
type Subject interface {
	EntityType() string
	EntityID() string
}

// Actor identifies who performed a change.
type Actor struct {
	ID   string
	Type string
}

// Request carries client details of the request that caused a change.
type Request struct {
	IP        string
	UserAgent string
}

type actorKey struct{}

type requestKey struct{}

// WithActor returns a context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}

// WithRequest returns a context carrying r.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request stored in ctx, if any.
func RequestFrom(ctx context.Context) (Request, bool) {
	r, ok := ctx.Value(requestKey{}).(Request)
	return r, ok
}
