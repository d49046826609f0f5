package returns

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"retailcore/internal/core/types"
)

// DefaultApprovalRule flags refunds at or above the threshold.
const DefaultApprovalRule = "amount_cents >= threshold_cents"

// ApprovalPolicy decides whether a refund needs manager approval.
// The rule is a CEL expression over amount_cents and threshold_cents,
// compiled once at startup.
type ApprovalPolicy struct {
	program cel.Program
}

// NewApprovalPolicy compiles the rule. An empty rule means the default.
func NewApprovalPolicy(rule string) (*ApprovalPolicy, error) {
	if rule == "" {
		rule = DefaultApprovalRule
	}

	env, err := cel.NewEnv(
		cel.Variable("amount_cents", cel.IntType),
		cel.Variable("threshold_cents", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("approval rule env: %w", err)
	}

	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile approval rule %q: %w", rule, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("approval rule %q must evaluate to bool, got %s", rule, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program approval rule: %w", err)
	}
	return &ApprovalPolicy{program: program}, nil
}

// RequiresApproval evaluates the rule against a refund amount.
func (p *ApprovalPolicy) RequiresApproval(amount, threshold types.MinorUnits) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"amount_cents":    int64(amount),
		"threshold_cents": int64(threshold),
	})
	if err != nil {
		return false, fmt.Errorf("eval approval rule: %w", err)
	}
	required, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("approval rule returned %T, want bool", out.Value())
	}
	return required, nil
}
