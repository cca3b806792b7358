package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/permcache/pkg/auth"
)

// GatewayIdentity records the subject claim forwarded by the gateway after
// it verified the caller's JWT. The header is ignored from untrusted
// networks. An auth context already on the request keeps its service name.
func GatewayIdentity(policy *TrustPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.identityHeader == "" || !policy.Trusts(r) {
				next.ServeHTTP(w, r)
				return
			}

			subject := strings.TrimSpace(r.Header.Get(policy.identityHeader))
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := &auth.AuthContext{Subject: subject}
			if existing := auth.GetAuthContext(r.Context()); existing != nil {
				authCtx.Service = existing.Service
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuthContext(r.Context(), authCtx)))
		})
	}
}
