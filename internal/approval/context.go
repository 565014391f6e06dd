package approval

import (
	"context"

	"github.com/roach88/approval/internal/ir"
)

type actorKey struct{}

// WithActor attaches the request actor to ctx. The default RequestActor hook
// reads it back with ActorFromContext.
func WithActor(ctx context.Context, actor ir.Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the request actor attached by WithActor.
func ActorFromContext(ctx context.Context) (ir.Identity, bool) {
	actor, ok := ctx.Value(actorKey{}).(ir.Identity)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
