package domain

// Permission identifiers for the blog CMS. Names are resource.action.
const (
	PermPostsRead    = "posts.read"
	PermPostsCreate  = "posts.create"
	PermPostsUpdate  = "posts.update"
	PermPostsDelete  = "posts.delete"
	PermPostsPublish = "posts.publish"

	PermCategoriesRead   = "categories.read"
	PermCategoriesCreate = "categories.create"
	PermCategoriesUpdate = "categories.update"
	PermCategoriesDelete = "categories.delete"

	PermRolesRead   = "roles.read"
	PermRolesCreate = "roles.create"
	PermRolesUpdate = "roles.update"
	PermRolesDelete = "roles.delete"

	PermActivityLogsRead = "activity_logs.read"

	PermUsersRead           = "users.read"
	PermUsersSessionsRevoke = "users.sessions.revoke"
)

// DefaultRolePermissions is the permission set granted to each built-in role.
var DefaultRolePermissions = map[string][]string{
	RoleAdmin: {
		PermPostsRead, PermPostsCreate, PermPostsUpdate, PermPostsDelete, PermPostsPublish,
		PermCategoriesRead, PermCategoriesCreate, PermCategoriesUpdate, PermCategoriesDelete,
		PermRolesRead, PermRolesCreate, PermRolesUpdate, PermRolesDelete,
		PermActivityLogsRead, PermUsersRead, PermUsersSessionsRevoke,
	},
	RoleEditor: {
		PermPostsRead, PermPostsCreate, PermPostsUpdate, PermPostsDelete, PermPostsPublish,
		PermCategoriesRead, PermCategoriesCreate, PermCategoriesUpdate,
	},
	RoleAuthor: {
		PermPostsRead, PermPostsCreate, PermPostsUpdate, PermCategoriesRead,
	},
	RoleReader: {
		PermPostsRead, PermCategoriesRead,
	},
}
