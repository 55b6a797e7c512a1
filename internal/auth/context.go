package auth

import (
	"context"
	"errors"
)

type ctxKey struct{}

// Identity is the authenticated caller as extracted from a verified token.
type Identity struct {
	UserID      string
	WorkspaceID string
	Role        string
}

// WithIdentity attaches a caller identity to ctx.
func WithIdentity(ctx context.Context, userID, workspaceID, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
	})
}

// IdentityFrom returns the full identity, if one was attached.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.UserID != "" {
		return id.UserID, nil
	}
	return "", errors.New("user_id not in context")
}

func WorkspaceID(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.WorkspaceID != "" {
		return id.WorkspaceID, nil
	}
	return "", errors.New("workspace_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.Role != "" {
		return id.Role, nil
	}
	return "", errors.New("role not in context")
}
