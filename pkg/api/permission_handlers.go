package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/platinummonkey/permcache/pkg/rbac"
	"github.com/platinummonkey/permcache/pkg/storage"
)

// PermissionHandlers handles the population, invalidation and authorize
// endpoints
type PermissionHandlers struct {
	populator PermissionPopulator
	checker   rbac.Checker
	publisher ChangePublisher
}

// NewPermissionHandlers creates a new permission handlers instance
func NewPermissionHandlers(populator PermissionPopulator, checker rbac.Checker, publisher ChangePublisher) *PermissionHandlers {
	return &PermissionHandlers{
		populator: populator,
		checker:   checker,
		publisher: publisher,
	}
}

// RegisterRoutes registers permission routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{userId}/permissions/snapshot", h.snapshot).Methods(http.MethodPost)
	router.HandleFunc("/users/{userId}/permissions", h.populate).Methods(http.MethodPut)
	router.HandleFunc("/users/{userId}/permission-changes", h.publishChange).Methods(http.MethodPost)
	router.HandleFunc("/authorize", h.authorize).Methods(http.MethodPost)
}

// snapshot handles POST /users/{userId}/permissions/snapshot
func (h *PermissionHandlers) snapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	snap, err := h.populator.Snapshot(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rbac.ErrInvalidUserID) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("Failed to take permission snapshot")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SnapshotResponse{UserID: snap.UserID, Version: snap.Version})
}

// populate handles PUT /users/{userId}/permissions
func (h *PermissionHandlers) populate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	var req PopulateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Version == nil {
		httputil.WriteBadRequest(w, "version is required")
		return
	}

	snap := rbac.Snapshot{UserID: userID, Version: *req.Version}
	err := h.populator.Populate(r.Context(), snap, req.Roles)
	switch {
	case err == nil:
		httputil.WriteNoContent(w)
	case errors.Is(err, storage.ErrStaleSnapshot):
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeStaleSnapshot,
			"permissions changed since snapshot; reload roles and retry")
	case errors.Is(err, rbac.ErrInvalidUserID):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w)
	}
}

// publishChange handles POST /users/{userId}/permission-changes
func (h *PermissionHandlers) publishChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	err := h.publisher.Publish(r.Context(), userID)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusAccepted, ChangeResponse{UserID: userID})
	case errors.Is(err, rbac.ErrInvalidUserID):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteErrorCode(w, http.StatusBadGateway, httputil.CodePublishFailed,
			"failed to publish permission change")
	}
}

// authorize handles POST /authorize
func (h *PermissionHandlers) authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil || userID == uuid.Nil {
		httputil.WriteBadRequest(w, "userId must be a non-nil UUID")
		return
	}
	code := strings.TrimSpace(req.PermissionCode)
	if code == "" {
		httputil.WriteBadRequest(w, "permissionCode is required")
		return
	}

	allowed, err := h.checker.Check(r.Context(), rbac.CheckRequest{UserID: userID, PermissionCode: code})
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusInternalServerError, httputil.CodePermissionCheckFailed,
			"permission check failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AuthorizeResponse{Allowed: allowed})
}
