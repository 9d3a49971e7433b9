package auth

import "errors"

// Role is an authorisation tier for API callers.
type Role string

const (
	// RoleViewer may read connection state and the attempt journal.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally trigger a reconnect attempt.
	RoleOperator Role = "operator"
)

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermConnectionRead    Permission = "connection:read"
	PermAttemptsRead      Permission = "attempts:read"
	PermConnectionOperate Permission = "connection:operate"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermConnectionRead,
		PermAttemptsRead,
	},
	RoleOperator: {
		PermConnectionRead,
		PermAttemptsRead,
		PermConnectionOperate,
	},
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}

// HasPermission reports whether role r grants p.
func HasPermission(r Role, p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}
