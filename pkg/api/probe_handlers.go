package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/permcache/pkg/contextkeys"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/rbac"
)

// ProbeHandlers exposes the authorization interceptor for an arbitrary
// permission code so callers can exercise the full request pipeline
type ProbeHandlers struct {
	interceptor *rbac.Interceptor
}

// NewProbeHandlers creates a new probe handlers instance
func NewProbeHandlers(interceptor *rbac.Interceptor) *ProbeHandlers {
	return &ProbeHandlers{interceptor: interceptor}
}

// RegisterRoutes registers probe routes
func (h *ProbeHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/probe/{permissionCode}", h.probe).Methods(http.MethodGet)
}

// probe handles GET /probe/{permissionCode}
func (h *ProbeHandlers) probe(w http.ResponseWriter, r *http.Request) {
	code, err := httputil.ParsePathString(r, "permissionCode")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	granted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, ProbeResponse{
			UserID:         contextkeys.GetUserID(r.Context()),
			PermissionCode: code,
			Allowed:        true,
		})
	})

	h.interceptor.Require(code)(granted).ServeHTTP(w, r)
}
