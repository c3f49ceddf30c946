// Package auth provides the acting user for engine commands. Tokens are
// issued by the external identity provider; this package only verifies them.
package auth

import (
	"context"
	"slices"
)

// RoleManager is the default role name granting manager capabilities.
const RoleManager = "manager"

// SystemActorID identifies transitions made by the scheduler.
const SystemActorID = "system"

// Actor is the current user as seen by the engines.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// System is the actor used by scheduled sweeps.
var System = Actor{ID: SystemActorID}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsManager reports whether the actor may perform manager-only operations.
func (a Actor) IsManager() bool {
	return a.HasRole(RoleManager)
}

// IsSystem reports whether the actor is the scheduler.
func (a Actor) IsSystem() bool {
	return a.ID == SystemActorID
}

type contextKey struct{}

// ContextWithActor returns a derived context that carries the actor.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext extracts an actor previously attached to the context.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
