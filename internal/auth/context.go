package auth

import (
	"context"
	"errors"
)

type ctxKey struct{}

// Identity is the verified caller attached to a request context.
type Identity struct {
	UserID      string
	WorkspaceID string
	Role        string
}

func WithIdentity(ctx context.Context, userID, workspaceID, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
	})
}

func identity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) (string, error) {
	if id, ok := identity(ctx); ok && id.UserID != "" {
		return id.UserID, nil
	}
	return "", errors.New("user_id not in context")
}

func WorkspaceID(ctx context.Context) (string, error) {
	if id, ok := identity(ctx); ok && id.WorkspaceID != "" {
		return id.WorkspaceID, nil
	}
	return "", errors.New("workspace_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if id, ok := identity(ctx); ok && id.Role != "" {
		return id.Role, nil
	}
	return "", errors.New("role not in context")
}
