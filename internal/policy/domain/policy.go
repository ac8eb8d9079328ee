// Package domain maps RPC operations to the permission they require.
package domain

import roledomain "blog-cms/backend/internal/role/domain"

// AuthServicePrefix is the full method prefix of the auth gRPC service.
const AuthServicePrefix = "/blog.auth.v1.AuthService/"

// Requirement is what an operation demands of the caller. Public operations need no principal;
// protected ones need an authenticated principal and, when Permission is non-empty, that permission.
type Requirement struct {
	Public     bool
	Permission string
}

// OperationPolicy is an explicit operation-to-requirement table keyed by gRPC full method.
type OperationPolicy struct {
	rules map[string]Requirement
}

// NewOperationPolicy copies rules into a new policy.
func NewOperationPolicy(rules map[string]Requirement) *OperationPolicy {
	m := make(map[string]Requirement, len(rules))
	for k, v := range rules {
		m[k] = v
	}
	return &OperationPolicy{rules: m}
}

// Lookup returns the requirement for fullMethod. ok is false for unknown methods; callers deny those.
func (p *OperationPolicy) Lookup(fullMethod string) (Requirement, bool) {
	if p == nil {
		return Requirement{}, false
	}
	r, ok := p.rules[fullMethod]
	return r, ok
}

// Methods returns the number of registered operations.
func (p *OperationPolicy) Methods() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// PublicMethods returns the set of operations that need no principal.
func (p *OperationPolicy) PublicMethods() map[string]bool {
	out := make(map[string]bool)
	if p == nil {
		return out
	}
	for m, r := range p.rules {
		if r.Public {
			out[m] = true
		}
	}
	return out
}

func public() Requirement { return Requirement{Public: true} }
func authenticated() Requirement { return Requirement{} }
func requires(perm string) Requirement { return Requirement{Permission: perm} }

// DefaultOperationPolicy covers the auth service RPCs, the health service, and the blog CMS
// operations that share this authorization core.
func DefaultOperationPolicy() *OperationPolicy {
	return NewOperationPolicy(map[string]Requirement{
		"/grpc.health.v1.Health/Check": public(),
		"/grpc.health.v1.Health/Watch": public(),
		"/grpc.health.v1.Health/List":  public(),

		AuthServicePrefix + "Login":                    public(),
		AuthServicePrefix + "Refresh":                  public(),
		AuthServicePrefix + "Logout":                   public(),
		AuthServicePrefix + "RequestPasswordReset":     public(),
		AuthServicePrefix + "VerifyPasswordResetToken": public(),
		AuthServicePrefix + "UpdatePassword":           public(),
		AuthServicePrefix + "WhoAmI":                   authenticated(),
		AuthServicePrefix + "RevokeUserSessions":       requires(roledomain.PermUsersSessionsRevoke),

		"/blog.cms.v1.PostService/ListPosts":   public(),
		"/blog.cms.v1.PostService/GetPost":     public(),
		"/blog.cms.v1.PostService/CreatePost":  requires(roledomain.PermPostsCreate),
		"/blog.cms.v1.PostService/UpdatePost":  requires(roledomain.PermPostsUpdate),
		"/blog.cms.v1.PostService/DeletePost":  requires(roledomain.PermPostsDelete),
		"/blog.cms.v1.PostService/PublishPost": requires(roledomain.PermPostsPublish),

		"/blog.cms.v1.CategoryService/ListCategories": public(),
		"/blog.cms.v1.CategoryService/CreateCategory": requires(roledomain.PermCategoriesCreate),
		"/blog.cms.v1.CategoryService/UpdateCategory": requires(roledomain.PermCategoriesUpdate),
		"/blog.cms.v1.CategoryService/DeleteCategory": requires(roledomain.PermCategoriesDelete),

		"/blog.cms.v1.RoleService/ListRoles":  requires(roledomain.PermRolesRead),
		"/blog.cms.v1.RoleService/CreateRole": requires(roledomain.PermRolesCreate),
		"/blog.cms.v1.RoleService/UpdateRole": requires(roledomain.PermRolesUpdate),
		"/blog.cms.v1.RoleService/DeleteRole": requires(roledomain.PermRolesDelete),

		"/blog.cms.v1.ActivityLogService/ListActivityLogs": requires(roledomain.PermActivityLogsRead),
		"/blog.cms.v1.UserService/ListUsers":               requires(roledomain.PermUsersRead),
	})
}
