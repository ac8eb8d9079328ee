package interceptors

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"blog-cms/backend/internal/identity/domain"
	policydomain "blog-cms/backend/internal/policy/domain"
)

// setAuthorizer allows when the principal holds the permission.
type setAuthorizer struct{ calls int }

func (a *setAuthorizer) Authorize(ctx context.Context, p domain.Principal, permission string) error {
	a.calls++
	if permission == "" || p.HasPermission(permission) {
		return nil
	}
	return errors.New("forbidden")
}

func TestAuthorizeUnary(t *testing.T) {
	policy := policydomain.NewOperationPolicy(map[string]policydomain.Requirement{
		"/blog.cms.v1.PostService/ListPosts":   {Public: true},
		"/blog.cms.v1.PostService/PublishPost": {Permission: "posts.publish"},
		"/blog.auth.v1.AuthService/WhoAmI":     {},
	})
	editor := WithPrincipal(context.Background(), domain.NewPrincipal("u1", "", "", []string{"editor"}, []string{"posts.publish"}))
	reader := WithPrincipal(context.Background(), domain.NewPrincipal("u2", "", "", []string{"reader"}, []string{"posts.read"}))

	testCases := []struct {
		name   string
		ctx    context.Context
		method string
		want   codes.Code
	}{
		{"public anonymous", context.Background(), "/blog.cms.v1.PostService/ListPosts", codes.OK},
		{"protected anonymous", context.Background(), "/blog.cms.v1.PostService/PublishPost", codes.Unauthenticated},
		{"protected granted", editor, "/blog.cms.v1.PostService/PublishPost", codes.OK},
		{"protected denied", reader, "/blog.cms.v1.PostService/PublishPost", codes.PermissionDenied},
		{"authenticated only", reader, "/blog.auth.v1.AuthService/WhoAmI", codes.OK},
		{"unknown operation", editor, "/blog.cms.v1.PostService/DropTable", codes.PermissionDenied},
		{"unknown operation anonymous", context.Background(), "/x.Y/Z", codes.PermissionDenied},
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			interceptor := AuthorizeUnary(policy, &setAuthorizer{}, nil)
			_, err := interceptor(tc.ctx, "req", &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.want {
				t.Errorf("code = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthorizeUnary_NilAuthorizerFailsClosed(t *testing.T) {
	policy := policydomain.NewOperationPolicy(map[string]policydomain.Requirement{
		"/a.B/Public":    {Public: true},
		"/a.B/Protected": {},
	})
	interceptor := AuthorizeUnary(policy, nil, nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	ctx := WithPrincipal(context.Background(), domain.NewPrincipal("u1", "", "", nil, nil))

	if _, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/a.B/Public"}, handler); err != nil {
		t.Errorf("public: %v", err)
	}
	_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/a.B/Protected"}, handler)
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
}
