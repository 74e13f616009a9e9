package expression

// BuildContext creates an expression evaluation context from a job's state.
//
// Matrix values are exposed both at the top level (py, use_conda) and under
// the "matrix" namespace for explicit access. Step results appear under
// "steps" keyed by step name, environment variables under "env", and the
// job's running failure flag as previous_step_failed:
//
//	{
//	    "py": "3.8",
//	    "use_conda": true,
//	    "matrix": {"py": "3.8", "use_conda": true},
//	    "steps": {
//	        "install": {"status": "succeeded", "exit_code": 0, "stdout": "..."},
//	    },
//	    "env": {"OMP_NUM_THREADS": "1"},
//	    "previous_step_failed": false,
//	}
//
// A top-level matrix key never shadows a reserved namespace: "matrix",
// "steps" and "env" always refer to the namespaces.
func BuildContext(matrix map[string]interface{}, steps map[string]map[string]interface{}, env map[string]string, previousStepFailed bool) map[string]interface{} {
	ctx := make(map[string]interface{}, len(matrix)+4)

	for k, v := range matrix {
		if reservedNames[k] {
			continue
		}
		ctx[k] = v
	}

	matrixNS := make(map[string]interface{}, len(matrix))
	for k, v := range matrix {
		matrixNS[k] = v
	}
	ctx["matrix"] = matrixNS

	stepsNS := make(map[string]interface{}, len(steps))
	for name, result := range steps {
		stepsNS[name] = result
	}
	ctx["steps"] = stepsNS

	envNS := make(map[string]interface{}, len(env))
	for k, v := range env {
		envNS[k] = v
	}
	ctx["env"] = envNS

	ctx["previous_step_failed"] = previousStepFailed

	return ctx
}

// reservedNames are context namespaces and builtins that matrix keys may not
// occupy at the top level.
var reservedNames = map[string]bool{
	"matrix":               true,
	"steps":                true,
	"env":                  true,
	"always":               true,
	"has":                  true,
	"includes":             true,
	"length":               true,
	"previous_step_failed": true,
}

// IsReservedName reports whether a matrix key collides with a context
// namespace or builtin. Definition validation rejects such keys.
func IsReservedName(name string) bool {
	return reservedNames[name]
}
