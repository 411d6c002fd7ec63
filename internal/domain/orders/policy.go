package orders

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"recordshop/internal/core/apperror"
)

// DefaultPolicy caps a single order at 10000 units.
const DefaultPolicy = "qty >= 1 && qty <= 10000"

// Policy is an admission rule evaluated before an order transaction opens.
// The expression is CEL over the variables qty (int) and record_id (string)
// and must evaluate to a bool.
type Policy struct {
	expr string
	prg  cel.Program
}

// NewPolicy compiles expr. An empty expression uses DefaultPolicy.
func NewPolicy(expr string) (*Policy, error) {
	if expr == "" {
		expr = DefaultPolicy
	}

	env, err := cel.NewEnv(
		cel.Variable("qty", cel.IntType),
		cel.Variable("record_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("order policy env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile order policy %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("order policy %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("order policy program: %w", err)
	}
	return &Policy{expr: expr, prg: prg}, nil
}

// Expression returns the source of the policy.
func (p *Policy) Expression() string {
	return p.expr
}

// Admit returns a validation error when the order is rejected.
func (p *Policy) Admit(recordID string, qty int64) error {
	out, _, err := p.prg.Eval(map[string]any{
		"qty":       qty,
		"record_id": recordID,
	})
	if err != nil {
		return apperror.NewValidation("order rejected by policy").
			WithDetail("policy", p.expr).
			WithCause(err)
	}
	if ok, _ := out.Value().(bool); !ok {
		return apperror.NewValidation("order quantity not allowed").
			WithDetail("field", "qty").
			WithDetail("value", qty).
			WithDetail("policy", p.expr)
	}
	return nil
}
