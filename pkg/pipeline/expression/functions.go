package expression

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr/ast"
)

// containsFunc checks if a collection contains an element.
// Usage: has(matrix.py, "3.8")
//
// Supports slices of any type and performs deep equality comparison.
// Returns false if the first argument is not a slice.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}

	collection := args[0]
	target := args[1]

	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i).Interface()
			if reflect.DeepEqual(elem, target) {
				return true, nil
			}
		}
		return false, nil

	case reflect.Map:
		// Check if key exists in map
		mapVal := v.MapIndex(reflect.ValueOf(target))
		return mapVal.IsValid(), nil

	case reflect.String:
		str, ok := collection.(string)
		if !ok {
			return false, nil
		}
		substr, ok := target.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(str, substr), nil

	default:
		return false, nil
	}
}

// lenFunc returns the length of a collection or string.
// Usage: length(steps) > 0
func lenFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}

	if args[0] == nil {
		return 0, nil
	}

	v := reflect.ValueOf(args[0])

	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}

// alwaysFunc is the reserved override token: it evaluates to true, and its
// presence in a condition makes the job executor evaluate the condition even
// after the job has failed.
func alwaysFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("always takes no arguments, got %d", len(args))
	}
	return true, nil
}

// previousStepFailedCalls rewrites the call form previous_step_failed() to
// the bare context boolean before type checking, so conditions may use either
// form. The environment shadows declared functions in expr, which rules out
// registering a function under the same name.
type previousStepFailedCalls struct{}

func (previousStepFailedCalls) Visit(node *ast.Node) {
	call, ok := (*node).(*ast.CallNode)
	if !ok || len(call.Arguments) != 0 {
		return
	}
	ident, ok := call.Callee.(*ast.IdentifierNode)
	if !ok || ident.Value != "previous_step_failed" {
		return
	}
	ast.Patch(node, &ast.IdentifierNode{Value: ident.Value})
}
