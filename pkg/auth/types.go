package auth

import (
	"context"

	"github.com/platinummonkey/permcache/pkg/contextkeys"
)

// AuthContext holds the identity established in front of this service.
// Subject is the user id claim of a verified JWT; Service is the name of an
// internal caller authenticated with a service token. Either may be empty.
type AuthContext struct {
	Subject string
	Service string
}

// WithAuthContext stores authCtx on ctx
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return contextkeys.WithAuth(ctx, authCtx)
}

// GetAuthContext extracts the auth context, or nil when none was set
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// SubjectFromContext returns the authenticated subject, or "" when absent
func SubjectFromContext(ctx context.Context) string {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.Subject
	}
	return ""
}
