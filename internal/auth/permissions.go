package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDisplayRead    Permission = "display:read"
	PermDisplayControl Permission = "display:control"
	PermDisplayManage  Permission = "display:manage"
	PermPresetApply    Permission = "preset:apply"
	PermPresetManage   Permission = "preset:manage"
	PermHistoryRead    Permission = "history:read"
	PermAuditRead      Permission = "audit:read"
	PermUserManage     Permission = "user:manage"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDisplayRead,
		PermHistoryRead,
	},
	RoleOperator: {
		PermDisplayRead,
		PermDisplayControl,
		PermPresetApply,
		PermHistoryRead,
	},
	RoleAdmin: {
		PermDisplayRead,
		PermDisplayControl,
		PermDisplayManage,
		PermPresetApply,
		PermPresetManage,
		PermHistoryRead,
		PermAuditRead,
		PermUserManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// CanSetFeatures returns true if the role may write VCP features.
// Kept as a named helper because it is the check MQTT and API command
// paths share.
func CanSetFeatures(role Role) bool {
	return HasPermission(role, PermDisplayControl)
}
