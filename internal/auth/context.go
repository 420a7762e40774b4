package auth

import (
	"context"

	"github.com/aivideopro/aivideopro/internal/model"
)

type callerKey struct{}

// ContextWithAuth attaches the verified caller to ctx.
func ContextWithAuth(ctx context.Context, caller *model.AuthContext) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// AuthFromContext returns the verified caller, or nil on routes outside
// the auth middleware.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	caller, _ := ctx.Value(callerKey{}).(*model.AuthContext)
	return caller
}
