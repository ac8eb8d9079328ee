package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"blog-cms/backend/internal/identity/domain"
)

const (
	policyQuery   = "data.blog.authz.allow"
	evalTimeout   = 250 * time.Millisecond
	defaultModule = "authz.rego"
)

// DefaultRegoPolicy grants a permission when it appears in the principal's permission set.
// Operator policies replacing it must declare package blog.authz and a boolean allow rule.
const DefaultRegoPolicy = `package blog.authz

default allow := false

allow if {
	input.permission != ""
	input.permission in input.principal.permissions
}
`

// OPAEvaluator evaluates permission checks with a Rego policy compiled once at construction.
// Evaluation errors deny and are logged.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewOPAEvaluator compiles module (DefaultRegoPolicy when empty) and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, module string, logger *slog.Logger) (*OPAEvaluator, error) {
	if strings.TrimSpace(module) == "" {
		module = DefaultRegoPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	query, err := prepare(ctx, module)
	if err != nil {
		return nil, err
	}
	return &OPAEvaluator{query: query, logger: logger}, nil
}

// LoadRegoPolicy reads an operator-supplied policy module from path.
func LoadRegoPolicy(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read rego policy: %w", err)
	}
	return string(b), nil
}

func prepare(ctx context.Context, module string) (rego.PreparedEvalQuery, error) {
	compiler, err := ast.CompileModules(map[string]string{defaultModule: module})
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("prepare policy: %w", err)
	}
	return q, nil
}

// HasPermission evaluates the policy for principal and permission. Any evaluation failure denies.
func (e *OPAEvaluator) HasPermission(principal domain.Principal, permission string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	allowed, err := e.eval(ctx, principal, permission)
	if err != nil {
		e.logger.Warn("authz: policy evaluation failed, denying",
			"user_id", principal.UserID, "permission", permission, "error", err)
		return false
	}
	return allowed
}

func (e *OPAEvaluator) eval(ctx context.Context, principal domain.Principal, permission string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(principal, permission)))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy allow is %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the prepared policy against a fixed input whose answer is known.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	probe := domain.NewPrincipal("health", "health", "", nil, []string{"health.check"})
	allowed, err := e.eval(ctx, probe, "health.check")
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	denied, err := e.eval(ctx, probe, "health.other")
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if !allowed || denied {
		return fmt.Errorf("policy failed membership probe (allowed=%v denied=%v)", allowed, denied)
	}
	return nil
}

func buildInput(principal domain.Principal, permission string) map[string]interface{} {
	roles := make([]interface{}, len(principal.Roles))
	for i, r := range principal.Roles {
		roles[i] = r
	}
	perms := make([]interface{}, len(principal.Permissions))
	for i, p := range principal.Permissions {
		perms[i] = p
	}
	return map[string]interface{}{
		"permission": permission,
		"principal": map[string]interface{}{
			"id":          principal.UserID,
			"username":    principal.Username,
			"roles":       roles,
			"permissions": perms,
		},
	}
}
