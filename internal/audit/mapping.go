package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /blog.cms.v1.PostService/CreatePost).
// Action is a verb: get, list, create, update, delete, publish, revoke, or a snake_case method name for others.
// Resource is derived from the service name (e.g. PostService -> post, ActivityLogService -> activity_log).
func ParseFullMethod(fullMethod string) ActionResource {
	// fullMethod format: /blog.package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: snake(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return snake(s)
}

func methodToAction(method string) string {
	verbs := []struct{ prefix, action string }{
		{"List", "list"},
		{"Create", "create"},
		{"Update", "update"},
		{"Delete", "delete"},
		{"Publish", "publish"},
		{"Revoke", "revoke"},
	}
	if strings.HasPrefix(method, "Get") && method != "Get" {
		return "get"
	}
	for _, v := range verbs {
		if strings.HasPrefix(method, v.prefix) {
			return v.action
		}
	}
	return snake(method)
}

// snake converts CamelCase to snake_case (ActivityLog -> activity_log, WhoAmI -> who_am_i).
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
