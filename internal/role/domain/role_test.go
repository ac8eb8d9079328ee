package domain

import "testing"

func TestValidPermission(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"posts.create", true},
		{"activity_logs.read", true},
		{"users.sessions.revoke", true},
		{"posts", false},
		{"Posts.Create", false},
		{"posts.", false},
		{"", false},
	}
	for _, tc := range testCases {
		if got := ValidPermission(tc.in); got != tc.want {
			t.Errorf("ValidPermission(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDefaultRolePermissions_AreValid(t *testing.T) {
	for name, perms := range DefaultRolePermissions {
		r := Role{Name: name, Permissions: perms}
		if err := r.Validate(); err != nil {
			t.Errorf("role %s: %v", name, err)
		}
	}
	if err := (&Role{}).Validate(); err == nil {
		t.Error("empty role name should fail validation")
	}
}
