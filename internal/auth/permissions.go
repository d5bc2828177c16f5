package auth

import "slices"

// Permission is a named capability checked by the API.
type Permission string

const (
	PermCapture          Permission = "capture:request"
	PermDevicesRead      Permission = "devices:read"
	PermPromptDecide     Permission = "prompt:decide"
	PermPermissionManage Permission = "permission:manage"
	PermRequestsInspect  Permission = "requests:inspect"
	PermTokenIssue       Permission = "token:issue"
)

var rolePermissions = map[Role][]Permission{
	RoleRequester: {
		PermCapture,
		PermDevicesRead,
	},
	RoleOperator: {
		PermDevicesRead,
		PermPromptDecide,
		PermPermissionManage,
		PermRequestsInspect,
		PermTokenIssue,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions of role, or nil.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
