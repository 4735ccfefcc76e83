package graflow

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionEvaluator evaluates a TaskDefinition.ConditionalExpression
// (a boolean expression over ExecutionContext variable keys) for the
// Conditional strategy. Compiled programs are cached, grounded on
// rendis-opcode's ExprEngine.
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]*vm.Program)}
}

// Eval compiles (or reuses a cached compile of) expression and runs it
// against ctx's current variable snapshot, returning the boolean result.
func (e *ConditionEvaluator) Eval(expression string, ctx *ExecutionContext) (bool, error) {
	program, err := e.getOrCompile(expression)
	if err != nil {
		return false, &ValidationError{Message: "conditionalExpression compile failed: " + err.Error()}
	}

	env := make(map[string]any)
	for k, v := range ctx.Snapshot() {
		env[k] = v
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, &ValidationError{Message: "conditionalExpression evaluation failed: " + err.Error()}
	}
	b, ok := out.(bool)
	if !ok {
		return false, &ValidationError{Message: "conditionalExpression did not evaluate to a boolean"}
	}
	return b, nil
}

func (e *ConditionEvaluator) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	p, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, err
	}
	e.cache[expression] = p
	return p, nil
}
