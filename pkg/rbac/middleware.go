package rbac

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/auth"
	"github.com/platinummonkey/permcache/pkg/contextkeys"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// HeaderTrust decides whether a request may assert its acting user through
// a header
type HeaderTrust interface {
	HeaderName() string
	Trusts(r *http.Request) bool
}

var errNoUser = errors.New("no user id")

// Interceptor guards handlers with a required permission code
type Interceptor struct {
	checker Checker
	trust   HeaderTrust
	logger  logrus.FieldLogger
}

// NewInterceptor creates a new authorization interceptor
func NewInterceptor(checker Checker, trust HeaderTrust, logger logrus.FieldLogger) *Interceptor {
	return &Interceptor{
		checker: checker,
		trust:   trust,
		logger:  observability.OrNop(logger),
	}
}

// Require creates middleware that requires permissionCode.
// Responses: 401 when no user id resolves (checker not called), 403 on
// denial, 500 PERMISSION_CHECK_FAILED when the check itself fails.
func (i *Interceptor) Require(permissionCode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := i.ResolveUserID(r)
			if err != nil {
				httputil.WriteUnauthenticated(w, "authentication required")
				return
			}

			ctx := contextkeys.WithUserID(r.Context(), userID.String())

			allowed, err := i.checker.Check(ctx, CheckRequest{
				UserID:         userID,
				PermissionCode: permissionCode,
			})
			if err != nil {
				httputil.WriteErrorCode(w, http.StatusInternalServerError,
					httputil.CodePermissionCheckFailed, "permission check failed")
				return
			}

			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveUserID returns the acting user. A trusted caller's header wins over
// the authenticated subject; an untrusted header is ignored.
func (i *Interceptor) ResolveUserID(r *http.Request) (uuid.UUID, error) {
	if i.trust != nil {
		if raw := r.Header.Get(i.trust.HeaderName()); raw != "" {
			if i.trust.Trusts(r) {
				return parseUserID(raw)
			}
			i.logger.WithFields(logrus.Fields{
				"request_id":  contextkeys.GetRequestID(r.Context()),
				"header":      i.trust.HeaderName(),
				"remote_addr": r.RemoteAddr,
			}).Warn("Ignoring user id header from untrusted caller")
		}
	}

	subject := auth.SubjectFromContext(r.Context())
	if subject == "" {
		return uuid.Nil, errNoUser
	}
	return parseUserID(subject)
}

func parseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidUserID
	}
	return id, nil
}
