package auth

import "strings"

// Role is the access level carried in a status API token.
type Role string

const (
	// RoleViewer reads the latest and recent readings.
	RoleViewer Role = "viewer"
	// RoleOperator additionally downloads reading exports.
	RoleOperator Role = "operator"
)

// ParseRole accepts the role claim case-insensitively.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleViewer:
		return RoleViewer, nil
	case RoleOperator:
		return RoleOperator, nil
	default:
		return "", ErrUnknownRole
	}
}

// Covers reports whether r may call a route that requires required.
func (r Role) Covers(required Role) bool {
	switch required {
	case RoleViewer:
		return r == RoleViewer || r == RoleOperator
	case RoleOperator:
		return r == RoleOperator
	default:
		return false
	}
}
