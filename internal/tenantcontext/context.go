// Package tenantcontext carries the resolved tenant through request
// contexts. Services treat a missing tenant as a precondition failure,
// never as an implicit default.
package tenantcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type contextKey struct{}

type Actor struct {
	TenantID snowflake.ID
	UserID   string
	Name     string
	Email    string
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}

func TenantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID == 0 {
		return 0, false
	}
	return actor.TenantID, true
}
