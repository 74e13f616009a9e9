// Package expression provides condition expression evaluation for pipeline steps.
//
// It uses the expr-lang/expr library to evaluate boolean expressions that
// determine whether a step should execute. Expressions support:
//
//   - Variable access: matrix keys at top level (py, use_conda) or via
//     matrix.py; step results via steps.build.exit_code; env.VAR_NAME
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in array (built-in operator)
//   - Custom functions: has(array, element), always(), previous_step_failed()
//
// Example expressions:
//
//	py == "3.8" && use_conda
//	steps.build.exit_code == 0
//	always() && code_cov
//	!previous_step_failed()
//
// The evaluator compiles against a strict environment: referencing a variable
// that is not defined for the job fails with an UndefinedVariableError rather
// than silently evaluating to false. This surfaces configuration typos early.
//
// Note: The expr library uses "contains" as a string operator (for substring
// matching), so use "in" or "has()" for array membership checks.
package expression
