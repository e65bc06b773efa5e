package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidRole is returned for a role name outside ValidRoles.
var ErrInvalidRole = errors.New("invalid role")

// Role is an authorisation tier.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleMaintainer Role = "maintainer"
)

// ValidRoles lists every role, lowest first.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleMaintainer}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range ValidRoles {
		if Role(s) == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Permission is a named capability.
type Permission string

const (
	PermDeviceRead     Permission = "device:read"
	PermDecoderOperate Permission = "decoder:operate"
	PermTaskRun        Permission = "task:run"
	PermDeviceManage   Permission = "device:manage"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDeviceRead,
	},
	RoleOperator: {
		PermDeviceRead,
		PermDecoderOperate,
	},
	RoleMaintainer: {
		PermDeviceRead,
		PermDecoderOperate,
		PermTaskRun,
		PermDeviceManage,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
