// Package auth authenticates API requests and carries the resulting user
// identity through the request context.
package auth

import "context"

// contextKey is a private type for context keys.
type contextKey int

const (
	userContextKey contextKey = iota
)

// UserContext holds authenticated user information.
type UserContext struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	AuthType string `json:"auth_type"` // "jwt", "apikey", "anonymous"
}

// WithUserContext adds user context to the context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// GetUserContext retrieves user context from the context, or nil.
func GetUserContext(ctx context.Context) *UserContext {
	if uc, ok := ctx.Value(userContextKey).(*UserContext); ok {
		return uc
	}
	return nil
}

// UserID returns the authenticated user ID from the context, or empty.
func UserID(ctx context.Context) string {
	if uc := GetUserContext(ctx); uc != nil {
		return uc.UserID
	}
	return ""
}
