package compliance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// evalCostLimit bounds CEL evaluation so a runaway author-supplied
// expression cannot stall a check.
const evalCostLimit = 1_000_000

// exprCompiler compiles and caches CEL programs for expression rules.
// Programs are keyed by expression text, so editing a rule naturally
// invalidates its cached program. Safe for concurrent use.
type exprCompiler struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// newExprCompiler builds the CEL environment expression rules evaluate in.
// The contract facts are exposed as three variables: clauses, text, fields.
func newExprCompiler() (*exprCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("clauses", cel.DynType),
		cel.Variable("text", cel.StringType),
		cel.Variable("fields", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &exprCompiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// compile returns a cached program for the expression, compiling on first use.
func (c *exprCompiler) compile(expression string) (cel.Program, error) {
	c.mu.RLock()
	prog, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := c.env.Program(ast, cel.CostLimit(evalCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	c.mu.Lock()
	c.programs[expression] = prog
	c.mu.Unlock()

	return prog, nil
}

// check evaluates an expression rule. Like every other strategy, author
// mistakes degrade to a warning verdict: a compile failure, an evaluation
// error, or a non-boolean result never aborts the check.
func (c *exprCompiler) check(ruleID string, p *ExpressionParams, facts ContractFacts) Verdict {
	if p.Expression == "" {
		return Verdict{
			Status:  StatusWarning,
			Message: "No expression specified",
		}
	}

	prog, err := c.compile(p.Expression)
	if err != nil {
		return Verdict{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Invalid expression: %v", err),
		}
	}

	out, _, err := prog.Eval(activation(facts))
	if err != nil {
		return Verdict{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Expression evaluation error: %v", err),
		}
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return Verdict{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Expression did not evaluate to a boolean (got %T)", out.Value()),
		}
	}

	if matched {
		return Verdict{
			Status:  StatusPassed,
			Message: "Expression satisfied",
		}
	}
	return Verdict{
		Status:     StatusFailed,
		Message:    "Expression not satisfied",
		Suggestion: "Review the contract against this rule's expression",
	}
}

// activation converts contract facts into the CEL variable bindings.
func activation(facts ContractFacts) map[string]any {
	clauses := make([]map[string]any, 0, len(facts.Clauses))
	for _, c := range facts.Clauses {
		clauses = append(clauses, map[string]any{
			"type":       c.Type,
			"text":       c.Text,
			"risk_level": c.RiskLevel,
		})
	}

	fields := make(map[string]any, len(facts.Fields))
	for k, v := range facts.Fields {
		fields[k] = v
	}

	return map[string]any{
		"clauses": clauses,
		"text":    facts.Text,
		"fields":  fields,
	}
}
