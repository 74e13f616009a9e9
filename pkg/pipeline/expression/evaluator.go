package expression

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gridrun/gridrun/pkg/errors"
)

// Evaluator evaluates condition expressions against a job context.
// It caches compiled expressions for improved performance on repeated
// evaluations across jobs that share the same context shape.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// unknownNamePattern extracts the identifier from expr's compile error for
// references that are not present in the environment.
var unknownNamePattern = regexp.MustCompile(`unknown name ([A-Za-z_][A-Za-z0-9_]*)`)

// Evaluate evaluates an expression against the given context.
// Returns the boolean result or an error if evaluation fails.
//
// The context should contain the job's matrix values at the top level plus
// the reserved namespaces built by BuildContext (matrix, steps, env,
// previous_step_failed).
//
// An empty expression defaults to true; the caller decides how that interacts
// with prior failures.
func (e *Evaluator) Evaluate(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	evalCtx := withBuiltins(ctx)

	program, err := e.compile(expression, evalCtx)
	if err != nil {
		if m := unknownNamePattern.FindStringSubmatch(err.Error()); m != nil {
			return false, &errors.UndefinedVariableError{
				Name:       m[1],
				Expression: expression,
			}
		}
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax and ensure all referenced variables exist",
		}
	}

	result, err := expr.Run(program, evalCtx)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced variables exist in the job context",
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}

	return boolResult, nil
}

// ReferencesAlways reports whether an expression contains the always()
// override token. The job executor uses this to decide whether to evaluate
// the condition at all once the job has failed.
func ReferencesAlways(expression string) bool {
	return strings.Contains(expression, "always(")
}

// compile compiles an expression against the environment and caches the
// result. The cache key includes a fingerprint of the environment's top-level
// keys: jobs produced by matrix includes may carry extra keys, and a program
// compiled for one shape is only reused for contexts with the same shape.
func (e *Evaluator) compile(expression string, env map[string]interface{}) (*vm.Program, error) {
	key := cacheKey(expression, env)

	e.mu.RLock()
	if prog, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	// Strict compile: no AllowUndefinedVariables, so a reference to a name
	// missing from the environment fails here instead of evaluating to nil.
	prog, err := expr.Compile(expression,
		expr.Env(env),
		expr.AsBool(),
		expr.Patch(previousStepFailedCalls{}),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = prog
	e.mu.Unlock()

	return prog, nil
}

// cacheKey builds a cache key from the expression and the sorted top-level
// environment keys.
func cacheKey(expression string, env map[string]interface{}) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	// Insertion sort keeps this dependency-free; environments are small.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return expression + "\x00" + strings.Join(keys, ",")
}

// withBuiltins copies the context and merges the builtin functions so they
// are visible both at compile time and at run time.
func withBuiltins(ctx map[string]interface{}) map[string]interface{} {
	evalCtx := make(map[string]interface{}, len(ctx)+4)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	evalCtx["has"] = containsFunc
	evalCtx["includes"] = containsFunc
	evalCtx["length"] = lenFunc
	evalCtx["always"] = alwaysFunc
	// previous_step_failed stays the bare boolean from BuildContext; the
	// compile step patches the call form down to it.
	return evalCtx
}

// ClearCache clears the expression cache.
// This is mainly useful for testing.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
