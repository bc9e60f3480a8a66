package auth

import (
	"context"

	"github.com/google/uuid"
)

var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// ActorRef identifies who performed an action
type ActorRef struct {
	ID   string
	Type string
}

// WithActor stores the authenticated account id in the context
func WithActor(ctx context.Context, accountID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorCtxKey, accountID)
}

// ActorFromContext returns the authenticated account id, if any
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	raw, ok := ctx.Value(actorCtxKey).(uuid.UUID)
	if !ok || raw == uuid.Nil {
		return uuid.Nil, false
	}
	return raw, true
}

func actorRef(ctx context.Context, fallback uuid.UUID) ActorRef {
	if id, ok := ActorFromContext(ctx); ok {
		return ActorRef{ID: id.String(), Type: "account"}
	}
	if fallback != uuid.Nil {
		return ActorRef{ID: fallback.String(), Type: "account"}
	}
	return ActorRef{Type: "anonymous"}
}
