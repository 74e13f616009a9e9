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

package validate

import (
	"errors"
	"fmt"
	"os"

	"github.com/gridrun/gridrun/internal/commands/shared"
	"github.com/gridrun/gridrun/internal/output"
	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline>",
		Short: "Validate pipeline YAML syntax and structure",
		Long: `Validate checks that a pipeline file has valid YAML syntax, well-formed
matrix axes and overrides, and a consistent step list. Validation is
purely structural: step commands are not executed and conditions are not
evaluated against a job context.

See also: gridrun run, gridrun expand`,
		Example: `  # Basic validation
  gridrun validate pipeline.yaml

  # Validation with JSON output for parsing
  gridrun validate pipeline.yaml --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	useJSON := shared.GetJSON()

	data, err := os.ReadFile(path)
	if err != nil {
		if useJSON {
			output.EmitJSONError("validate", []output.JSONError{{
				Code:       shared.CodeNotFound,
				Message:    fmt.Sprintf("failed to read pipeline file: %v", err),
				Suggestion: "Check that the file path is correct and the file exists",
			}})
			return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: ""}
		}
		return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: fmt.Sprintf("failed to read pipeline file: %v", err)}
	}

	var validationErrors []output.JSONError

	// YAML syntax first, so structural errors come with a clearer message
	var yamlData interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		validationErrors = append(validationErrors, output.JSONError{
			Code:       shared.CodeInvalidPipeline,
			Message:    fmt.Sprintf("YAML syntax error: %v", err),
			Suggestion: "Check YAML syntax and indentation",
		})
	}

	var def *pipeline.Definition
	if len(validationErrors) == 0 {
		def, err = pipeline.ParseDefinition(data)
		if err != nil {
			validationErrors = append(validationErrors, output.JSONError{
				Code:       shared.ErrorCode(err),
				Message:    err.Error(),
				Suggestion: suggestionOf(err),
			})
		}
	}

	if len(validationErrors) > 0 {
		if useJSON {
			output.EmitJSONError("validate", validationErrors)
			return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: ""}
		}
		for _, ve := range validationErrors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %s\n", path, ve.Message)
			if ve.Suggestion != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", ve.Suggestion)
			}
		}
		return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: "validation failed"}
	}

	jobs := pipeline.Expand(def)

	if useJSON {
		type pipelineMetadata struct {
			Name     string `json:"name"`
			Steps    int    `json:"steps"`
			Jobs     int    `json:"jobs"`
			FailFast bool   `json:"fail_fast"`
		}
		type validateResponse struct {
			output.JSONResponse
			Pipeline pipelineMetadata `json:"pipeline"`
		}

		return output.EmitJSON(validateResponse{
			JSONResponse: output.JSONResponse{
				Version: "1.0",
				Command: "validate",
				Success: true,
			},
			Pipeline: pipelineMetadata{
				Name:     def.Name,
				Steps:    len(def.Steps),
				Jobs:     len(jobs),
				FailFast: def.FailFast,
			},
		})
	}

	cmd.Println("Validation Results:")
	cmd.Println("  [OK] Syntax valid")
	cmd.Println("  [OK] Matrix axes and overrides valid")
	cmd.Println("  [OK] Step list valid")
	cmd.Printf("\nPipeline %q expands to %d job(s) with %d step(s) each\n", def.Name, len(jobs), len(def.Steps))

	return nil
}

// suggestionOf extracts a suggestion from the error chain, if any.
func suggestionOf(err error) string {
	var valErr *pkgerrors.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Suggestion
	}
	var undefErr *pkgerrors.UndefinedVariableError
	if errors.As(err, &undefErr) {
		return undefErr.Suggestion()
	}
	return ""
}
