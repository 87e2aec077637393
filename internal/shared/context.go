package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorContextKey struct{}

// ContextWithActor stores the acting user in context for audit trails.
func ContextWithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user, falling back to fallback when absent.
func ActorFromContext(ctx context.Context, fallback uuid.UUID) uuid.UUID {
	if id, ok := ctx.Value(actorContextKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return id
	}
	return fallback
}
