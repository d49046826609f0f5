// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor identifies who performs an operation. Supplied by the surrounding
// authentication layer; the engine attaches it to every movement but never
// enforces who may call it.
type Actor struct {
	UserID  string
	Name    string
	StoreID string
	Roles   []string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context, or nil.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// ActorID returns the acting user ID from context or "system".
// Movements must always carry a created_by value.
func ActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}

// HasRole checks if the actor carries a specific role claim.
func HasRole(ctx context.Context, role string) bool {
	a := GetActor(ctx)
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
