package api

import (
	"github.com/google/uuid"
	"github.com/platinummonkey/permcache/pkg/rbac"
)

// SnapshotResponse is returned by the snapshot endpoint
type SnapshotResponse struct {
	UserID  uuid.UUID `json:"userId"`
	Version int64     `json:"version"`
}

// PopulateRequest carries the roles loaded after the snapshot was taken
type PopulateRequest struct {
	Version *int64      `json:"version"`
	Roles   []rbac.Role `json:"roles"`
}

// ChangeResponse acknowledges an accepted permission change
type ChangeResponse struct {
	UserID uuid.UUID `json:"userId"`
}

// AuthorizeRequest asks for one allow/deny decision
type AuthorizeRequest struct {
	UserID         string `json:"userId"`
	PermissionCode string `json:"permissionCode"`
}

// AuthorizeResponse is the decision
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// ProbeResponse is returned when the interceptor lets a probe through
type ProbeResponse struct {
	UserID         string `json:"userId"`
	PermissionCode string `json:"permissionCode"`
	Allowed        bool   `json:"allowed"`
}
