package authv1

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	if c == nil {
		t.Fatal("json codec not registered")
	}
	b, err := c.Marshal(&LoginRequest{Email: "a@x.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got LoginRequest
	if err := c.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Email != "a@x.com" || got.DeviceId != "" {
		t.Errorf("got %+v", got)
	}
	var empty WhoAmIRequest
	if err := c.Unmarshal(nil, &empty); err != nil {
		t.Errorf("Unmarshal(nil) = %v, want nil", err)
	}
}

func TestServiceDesc_MethodNames(t *testing.T) {
	if len(AuthService_ServiceDesc.Methods) != 8 {
		t.Fatalf("methods = %d, want 8", len(AuthService_ServiceDesc.Methods))
	}
	for _, m := range AuthService_ServiceDesc.Methods {
		if m.Handler == nil {
			t.Errorf("%s has no handler", m.MethodName)
		}
	}
	if AuthService_Login_FullMethodName != "/blog.auth.v1.AuthService/Login" {
		t.Errorf("Login full method = %q", AuthService_Login_FullMethodName)
	}
}
