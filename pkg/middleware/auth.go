package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/platinummonkey/permcache/pkg/contextkeys"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ServiceTokenAuth requires a valid service token on every request.
// When the verifier has no hashes configured the API is open and requests
// pass through unchanged.
func ServiceTokenAuth(verifier *auth.TokenVerifier, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	logger = observability.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || !verifier.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			// Format: "Bearer <token>"
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteUnauthenticated(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httputil.WriteUnauthenticated(w, "invalid authorization header format")
				return
			}

			token := parts[1]
			if err := verifier.Verify(token); err != nil {
				logger.WithFields(logrus.Fields{
					"request_id":  contextkeys.GetRequestID(r.Context()),
					"remote_addr": r.RemoteAddr,
				}).Warn("Rejected invalid service token")
				httputil.WriteUnauthenticated(w, "invalid service token")
				return
			}

			authCtx := &auth.AuthContext{Service: auth.NewTokenGenerator().ExtractPrefix(token)}
			if existing := auth.GetAuthContext(r.Context()); existing != nil {
				authCtx.Subject = existing.Subject
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuthContext(r.Context(), authCtx)))
		})
	}
}
