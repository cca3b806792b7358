package rbac

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCheckFailed marks a permission check that could not reach a decision.
	// It is never a denial.
	ErrCheckFailed = errors.New("permission check failed")

	// ErrInvalidUserID is returned for a nil or unparsable user id
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrPublishFailed is returned when a permission change event could not be
	// delivered to the broker
	ErrPublishFailed = errors.New("permission change publish failed")
)

// Cache key layout shared with every service that reads the cache
const (
	permissionKeyPrefix     = "permissions:"
	permissionVersionPrefix = "permissions:version:"
	sessionKeyPrefix        = "session:"
	sessionTrackerPrefix    = "session:tracker:"
)

// PermissionKey is the hash holding a user's permission set
func PermissionKey(userID uuid.UUID) string {
	return permissionKeyPrefix + userID.String()
}

// PermissionVersionKey is the invalidation counter guarding PermissionKey
func PermissionVersionKey(userID uuid.UUID) string {
	return permissionVersionPrefix + userID.String()
}

// SessionKey is the session liveness key extended on every permission hit
func SessionKey(userID uuid.UUID) string {
	return sessionKeyPrefix + userID.String()
}

// SessionTrackerKey holds the timestamp of the last permission hit
func SessionTrackerKey(userID uuid.UUID) string {
	return sessionTrackerPrefix + userID.String()
}

// RolePermission is one permission code granted or withheld by a role
type RolePermission struct {
	Code    string `json:"code"`
	Allowed bool   `json:"allowed"`
}

// Role is a user's role with its permission associations, as resolved by
// the authentication flow
type Role struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name,omitempty"`
	Active      bool             `json:"active"`
	Permissions []RolePermission `json:"permissions"`
}

// PermissionSet maps permission code to allowed
type PermissionSet map[string]bool

// Flatten merges the permissions of all active roles. A code is allowed when
// any active role allows it; a code only ever seen with allowed=false is kept
// as an explicit false. Inactive roles contribute nothing.
func Flatten(roles []Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		if !role.Active {
			continue
		}
		for _, perm := range role.Permissions {
			if perm.Code == "" {
				continue
			}
			set[perm.Code] = set[perm.Code] || perm.Allowed
		}
	}
	return set
}

// CheckRequest is the unit of work for one authorization decision
type CheckRequest struct {
	UserID         uuid.UUID
	PermissionCode string
	// FunctionID is carried for callers of the older API and ignored.
	FunctionID uuid.UUID
}

// PermissionChangeMessage is the wire payload of an invalidation event:
//
//	{"userId":"<uuid>","tenantId":null}
//
// TenantID is reserved and not read by any handler.
type PermissionChangeMessage struct {
	UserID   uuid.UUID `json:"userId"`
	TenantID *string   `json:"tenantId"`
}

// Snapshot is the invalidation version observed before roles were loaded
type Snapshot struct {
	UserID  uuid.UUID
	Version int64
}

// TTLs are the cache lifetimes used by the read and write paths
type TTLs struct {
	Permission time.Duration
	Session    time.Duration
	Version    time.Duration
}
