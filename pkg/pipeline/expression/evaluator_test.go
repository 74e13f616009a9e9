package expression

import (
	"testing"

	"github.com/gridrun/gridrun/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]interface{} {
	return BuildContext(
		map[string]interface{}{
			"py":        "3.8",
			"use_conda": true,
			"os_name":   "linux",
		},
		map[string]map[string]interface{}{
			"install": {
				"status":      "succeeded",
				"exit_code":   0,
				"stdout":      "ok",
				"stderr":      "",
				"duration_ms": int64(1200),
				"skipped":     false,
			},
		},
		map[string]string{"OMP_NUM_THREADS": "1"},
		false,
	)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"empty expression defaults to true", "", true},
		{"top-level matrix key", `py == "3.8"`, true},
		{"top-level matrix key false", `py == "3.6"`, false},
		{"matrix namespace", `matrix.py == "3.8"`, true},
		{"boolean matrix value", "use_conda", true},
		{"negation", "!use_conda", false},
		{"conjunction", `py == "3.8" && use_conda`, true},
		{"step exit code", "steps.install.exit_code == 0", true},
		{"step status", `steps.install.status == "succeeded"`, true},
		{"step skipped flag", "!steps.install.skipped", true},
		{"env access", `env.OMP_NUM_THREADS == "1"`, true},
		{"in operator", `py in ["3.7", "3.8"]`, true},
		{"always is true", "always()", true},
		{"always with condition", `always() && os_name == "linux"`, true},
		{"previous step failed", "previous_step_failed()", false},
		{"not previous step failed", "!previous_step_failed()", true},
		{"previous step failed bare", "previous_step_failed", false},
		{"not previous step failed bare", "!previous_step_failed", true},
		{"comparison chain", `steps.install.duration_ms < 5000`, true},
	}

	evaluator := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tt.expression, testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateUndefinedVariable(t *testing.T) {
	evaluator := New()

	_, err := evaluator.Evaluate(`code_cov && py == "3.8"`, testContext())
	require.Error(t, err)

	var undefErr *errors.UndefinedVariableError
	require.ErrorAs(t, err, &undefErr)
	assert.Equal(t, "code_cov", undefErr.Name)
	assert.True(t, undefErr.IsUserVisible())
	assert.NotEmpty(t, undefErr.Suggestion())
}

func TestEvaluateDefinedOnlyForSomeJobs(t *testing.T) {
	evaluator := New()

	// A job extended by a matrix include carries the extra key; the same
	// expression must not be poisoned by a cached program from the other
	// shape.
	base := testContext()
	extended := BuildContext(
		map[string]interface{}{"py": "3.8", "use_conda": true, "os_name": "linux", "code_cov": true},
		nil,
		nil,
		false,
	)

	got, err := evaluator.Evaluate("code_cov", extended)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = evaluator.Evaluate("code_cov", base)
	var undefErr *errors.UndefinedVariableError
	require.ErrorAs(t, err, &undefErr)
}

func TestEvaluatePreviousStepFailed(t *testing.T) {
	evaluator := New()

	ctx := BuildContext(map[string]interface{}{"py": "3.8"}, nil, nil, true)

	got, err := evaluator.Evaluate("previous_step_failed()", ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = evaluator.Evaluate("always() && !previous_step_failed()", ctx)
	require.NoError(t, err)
	assert.False(t, got)

	// Both the call form and the bare variable read the same flag
	got, err = evaluator.Evaluate("previous_step_failed", ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = evaluator.Evaluate("previous_step_failed == previous_step_failed()", ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateNonBooleanResult(t *testing.T) {
	evaluator := New()

	_, err := evaluator.Evaluate("steps.install.exit_code", testContext())
	require.Error(t, err)

	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestEvaluateSyntaxError(t *testing.T) {
	evaluator := New()

	_, err := evaluator.Evaluate(`py == `, testContext())
	require.Error(t, err)

	var valErr *errors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestReferencesAlways(t *testing.T) {
	assert.True(t, ReferencesAlways("always()"))
	assert.True(t, ReferencesAlways(`always() && code_cov`))
	assert.False(t, ReferencesAlways(""))
	assert.False(t, ReferencesAlways(`py == "3.8"`))
	// The variable named always without a call does not count
	assert.False(t, ReferencesAlways("always_run"))
}

func TestCaching(t *testing.T) {
	evaluator := New()
	ctx := testContext()

	_, err := evaluator.Evaluate(`py == "3.8"`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evaluator.CacheSize())

	// Same expression, same shape: no new entry
	_, err = evaluator.Evaluate(`py == "3.8"`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evaluator.CacheSize())

	// Same expression, different shape: new entry
	other := BuildContext(map[string]interface{}{"py": "3.8", "extra": 1}, nil, nil, false)
	_, err = evaluator.Evaluate(`py == "3.8"`, other)
	require.NoError(t, err)
	assert.Equal(t, 2, evaluator.CacheSize())

	evaluator.ClearCache()
	assert.Equal(t, 0, evaluator.CacheSize())
}

func TestBuiltinFunctions(t *testing.T) {
	evaluator := New()
	ctx := BuildContext(
		map[string]interface{}{
			"targets": []interface{}{"lint", "test"},
			"label":   "py38-conda",
		},
		nil,
		nil,
		false,
	)

	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"has on slice", `has(targets, "lint")`, true},
		{"has on slice missing", `has(targets, "docs")`, false},
		{"includes alias", `includes(targets, "test")`, true},
		{"has on string substring", `has(label, "conda")`, true},
		{"length of slice", "length(targets) == 2", true},
		{"length of string", "length(label) > 5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tt.expression, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildContextReservedNames(t *testing.T) {
	// A matrix key colliding with a namespace must not shadow it
	ctx := BuildContext(
		map[string]interface{}{"steps": "bogus", "py": "3.8"},
		map[string]map[string]interface{}{"build": {"exit_code": 0}},
		nil,
		false,
	)

	steps, ok := ctx["steps"].(map[string]interface{})
	require.True(t, ok, "steps namespace must survive a matrix key collision")
	assert.Contains(t, steps, "build")

	// The colliding value stays reachable through the matrix namespace
	matrix := ctx["matrix"].(map[string]interface{})
	assert.Equal(t, "bogus", matrix["steps"])
}

func TestIsReservedName(t *testing.T) {
	for _, name := range []string{"matrix", "steps", "env", "always", "has", "includes", "length", "previous_step_failed"} {
		assert.True(t, IsReservedName(name), name)
	}
	assert.False(t, IsReservedName("py"))
	assert.False(t, IsReservedName("use_conda"))
}
