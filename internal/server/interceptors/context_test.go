package interceptors

import (
	"context"
	"testing"

	"blog-cms/backend/internal/identity/domain"
)

func TestWithPrincipal_SetsAllValues(t *testing.T) {
	p := domain.NewPrincipal("user-1", "alice", "a@x.com", []string{"editor"}, []string{"posts.create"})
	ctx := WithPrincipal(context.Background(), p)

	got, ok := GetPrincipal(ctx)
	if !ok {
		t.Fatal("GetPrincipal should return true")
	}
	if got.UserID != "user-1" || !got.HasPermission("posts.create") {
		t.Errorf("principal = %+v", got)
	}
	userID, ok := GetUserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("GetUserID = %q, %v, want user-1, true", userID, ok)
	}
}

func TestGetPrincipal_ReturnsFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetPrincipal(ctx); ok {
		t.Error("GetPrincipal should return false when not set")
	}
	userID, ok := GetUserID(ctx)
	if ok {
		t.Error("GetUserID should return false when not set")
	}
	if userID != "" {
		t.Errorf("user_id = %q, want empty string", userID)
	}
}

func TestGetPrincipal_EmptyUserID(t *testing.T) {
	ctx := WithPrincipal(context.Background(), domain.Principal{})
	if _, ok := GetPrincipal(ctx); ok {
		t.Error("principal without user id must not count as authenticated")
	}
}

func TestContext_Isolation(t *testing.T) {
	p1 := domain.NewPrincipal("user-1", "a", "", nil, nil)
	p2 := domain.NewPrincipal("user-2", "b", "", nil, nil)
	ctx1 := WithPrincipal(context.Background(), p1)
	ctx2 := WithPrincipal(context.Background(), p2)

	u1, _ := GetUserID(ctx1)
	u2, _ := GetUserID(ctx2)
	if u1 != "user-1" || u2 != "user-2" {
		t.Errorf("contexts leaked: %q %q", u1, u2)
	}
}
