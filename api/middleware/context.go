package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxEmail  contextKey = "email"
)

// Identity is the authenticated caller attached by Auth.
type Identity struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Email  string
}

// WithIdentity seeds ctx with the caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	return context.WithValue(ctx, ctxEmail, id.Email)
}

// IdentityFromContext returns the caller identity and whether one was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	userID, ok := ctx.Value(ctxUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return Identity{}, false
	}
	role, _ := ctx.Value(ctxRole).(enums.ActorRole)
	email, _ := ctx.Value(ctxEmail).(string)
	return Identity{UserID: userID, Role: role, Email: email}, true
}

func UserIDFromContext(ctx context.Context) string {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return id.UserID.String()
}
