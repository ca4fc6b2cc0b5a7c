package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
)

type actorKey struct{}

type scopeKey struct{}

// requestScope lets outer middleware see the caller that inner middleware
// authenticated on a derived context.
type requestScope struct {
	actor Actor
}

func withRequestScope(ctx context.Context) (context.Context, *requestScope) {
	scope := &requestScope{}
	return context.WithValue(ctx, scopeKey{}, scope), scope
}

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID    string
	Role      enums.Role
	TokenID   string
	ExpiresAt time.Time
}

// WithActor replaces the caller stored in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if scope, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		scope.actor = actor
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorOf returns the stored caller, or the zero Actor.
func ActorOf(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

func UserIDFromContext(ctx context.Context) string {
	return ActorOf(ctx).UserID
}

func RoleFromContext(ctx context.Context) string {
	return string(ActorOf(ctx).Role)
}

// WithUserID sets only the user of the stored caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	actor := ActorOf(ctx)
	actor.UserID = userID
	return WithActor(ctx, actor)
}

// WithRole sets only the role of the stored caller.
func WithRole(ctx context.Context, role string) context.Context {
	actor := ActorOf(ctx)
	actor.Role = enums.Role(role)
	return WithActor(ctx, actor)
}

// ActorFromContext returns the authenticated user and role, or an
// unauthorized error when the request carries none.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.Role, error) {
	actor := ActorOf(ctx)
	if actor.UserID == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, actor.Role, nil
}
