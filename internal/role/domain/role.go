package domain

import (
	"errors"
	"regexp"
	"time"
)

// Role is a named bundle of permissions assigned to users.
type Role struct {
	ID          string
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// Built-in blog roles created by seeding.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleAuthor = "author"
	RoleReader = "reader"
)

var permissionPattern = regexp.MustCompile(`^[a-z][a-z_]*(\.[a-z][a-z_]*)+$`)

// ValidPermission reports whether p is a dotted permission identifier such as "posts.create".
func ValidPermission(p string) bool {
	return permissionPattern.MatchString(p)
}

// Validate validates the role for persistence.
func (r *Role) Validate() error {
	if r.Name == "" {
		return errors.New("role name is required")
	}
	for _, p := range r.Permissions {
		if !ValidPermission(p) {
			return errors.New("invalid permission identifier: " + p)
		}
	}
	return nil
}
