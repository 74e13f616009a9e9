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

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
)

// Exit codes for gridrun commands
const (
	ExitSuccess         = 0
	ExitRunFailed       = 1
	ExitInvalidPipeline = 2
	ExitUndefinedVar    = 3
	ExitCanceled        = 130 // 128 + SIGINT
)

// Error codes used in JSON error envelopes.
const (
	CodeInvalidPipeline   = "invalid_pipeline"
	CodeUndefinedVariable = "undefined_variable"
	CodeRunFailed         = "run_failed"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewRunError creates an error for pipeline run failures
func NewRunError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitRunFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidPipelineError creates an error for invalid pipeline files
func NewInvalidPipelineError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidPipeline,
		Message: msg,
		Cause:   cause,
	}
}

// NewUndefinedVariableError creates an error for conditions referencing
// variables the job does not define
func NewUndefinedVariableError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitUndefinedVar,
		Message: msg,
		Cause:   cause,
	}
}

// NewCanceledError creates an error for interrupted runs
func NewCanceledError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitCanceled,
		Message: msg,
		Cause:   cause,
	}
}

// ErrorCode maps an error chain to a JSON error code.
func ErrorCode(err error) string {
	var undefVar *pkgerrors.UndefinedVariableError
	if errors.As(err, &undefVar) {
		return CodeUndefinedVariable
	}
	var validation *pkgerrors.ValidationError
	if errors.As(err, &validation) {
		return CodeInvalidPipeline
	}
	var notFound *pkgerrors.NotFoundError
	if errors.As(err, &notFound) {
		return CodeNotFound
	}
	return CodeRunFailed
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if len(msg) > 0 {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		printUserVisibleSuggestion(err)

		os.Exit(exitErr.Code)
	}

	// Default to run failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	printUserVisibleSuggestion(err)

	os.Exit(ExitRunFailed)
}

// printUserVisibleSuggestion checks if an error implements UserVisibleError
// and prints the suggestion if available.
func printUserVisibleSuggestion(err error) {
	// Walk the error chain to find a UserVisibleError
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				suggestion := userErr.Suggestion()
				if suggestion != "" {
					fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}

		err = errors.Unwrap(err)
	}
}
