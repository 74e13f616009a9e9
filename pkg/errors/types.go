// Copyright 2026 The Gridrun Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents pipeline definition validation failures.
// Use this for malformed matrix axes, overrides, steps, or unparseable
// condition expressions. A ValidationError is fatal before any job starts.
type ValidationError struct {
	// Field identifies which definition field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// UndefinedVariableError represents a condition expression referencing a
// variable that does not exist in the job context. This surfaces
// configuration typos instead of silently evaluating to false; it fails the
// owning step the same way a command failure would.
type UndefinedVariableError struct {
	// Name is the variable that was not found
	Name string

	// Expression is the condition that referenced it
	Expression string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q in condition %q", e.Name, e.Expression)
}

// UserMessage implements UserVisibleError.
func (e *UndefinedVariableError) UserMessage() string {
	return fmt.Sprintf("the condition %q references %q, which is not defined for this job", e.Expression, e.Name)
}

// Suggestion implements UserVisibleError.
func (e *UndefinedVariableError) Suggestion() string {
	return "check the condition for typos; only matrix keys, step names, env and previous_step_failed are defined"
}

// IsUserVisible implements UserVisibleError.
func (e *UndefinedVariableError) IsUserVisible() bool {
	return true
}

// NotFoundError represents a resource not found error.
// Use this when a requested resource (pipeline file, run record) does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "pipeline", "run")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProcessError represents a nonzero exit from an invoked step command.
// It is recovered locally as a failed step result; it fails the owning job
// but never aborts sibling jobs unless fail-fast is enabled.
type ProcessError struct {
	// Command is the rendered command that was executed
	Command string

	// ExitCode is the process exit status
	ExitCode int

	// Stderr is the captured standard error (trimmed)
	Stderr string

	// Cause is the underlying error from the OS, if any
	Cause error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("command exited with code %d", e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// ConfigError represents engine configuration problems.
// Use this for missing settings or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a step exceeding its configured deadline.
// Treated as a process failure by the job executor.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "step build")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
