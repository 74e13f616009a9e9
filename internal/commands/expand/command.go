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

package expand

import (
	"fmt"

	"github.com/gridrun/gridrun/internal/commands/shared"
	"github.com/gridrun/gridrun/internal/output"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/spf13/cobra"
)

// NewCommand creates the expand command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <pipeline>",
		Short: "Show the jobs a pipeline expands to",
		Long: `Expand prints the job instances the matrix produces, after the exclude
and include overrides are applied, in the order the scheduler would run
them. Nothing is executed.`,
		Example: `  # Preview the expansion
  gridrun expand pipeline.yaml

  # Machine-readable expansion
  gridrun expand pipeline.yaml --json | jq '.data.jobs[].id'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExpand,
	}

	return cmd
}

func runExpand(cmd *cobra.Command, args []string) error {
	def, err := pipeline.LoadDefinition(args[0])
	if err != nil {
		if shared.GetJSON() {
			output.EmitJSONError("expand", []output.JSONError{{
				Code:    shared.ErrorCode(err),
				Message: err.Error(),
			}})
			return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: ""}
		}
		return shared.NewInvalidPipelineError("failed to load pipeline", err)
	}

	jobs := pipeline.Expand(def)

	if shared.GetJSON() {
		type expansion struct {
			Pipeline string                  `json:"pipeline"`
			Jobs     []*pipeline.JobInstance `json:"jobs"`
		}
		return output.EmitJSONSuccess("expand", expansion{
			Pipeline: def.Name,
			Jobs:     jobs,
		})
	}

	for _, job := range jobs {
		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
	}
	if !shared.GetQuiet() {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d job(s)\n", len(jobs))
	}

	return nil
}
