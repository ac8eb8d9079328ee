package domain

import "slices"

// Principal is the authenticated subject of a request as projected into an access token at issue time.
// Roles and Permissions are copied on construction and never mutated afterwards.
type Principal struct {
	UserID      string
	Username    string
	Email       string
	Roles       []string
	Permissions []string
}

// NewPrincipal returns a Principal owning its own sorted, de-duplicated copies of roles and permissions.
func NewPrincipal(userID, username, email string, roles, permissions []string) Principal {
	return Principal{
		UserID:      userID,
		Username:    username,
		Email:       email,
		Roles:       normalize(roles),
		Permissions: normalize(permissions),
	}
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	_, ok := slices.BinarySearch(p.Roles, role)
	return ok
}

// HasPermission reports whether permission is in the principal's precomputed permission set.
func (p Principal) HasPermission(permission string) bool {
	if permission == "" {
		return false
	}
	_, ok := slices.BinarySearch(p.Permissions, permission)
	return ok
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
