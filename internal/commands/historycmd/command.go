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

package historycmd

import (
	"fmt"
	"time"

	"github.com/gridrun/gridrun/internal/commands/shared"
	"github.com/gridrun/gridrun/internal/history"
	"github.com/gridrun/gridrun/internal/output"
	"github.com/spf13/cobra"
)

// NewCommand creates the history command group
func NewCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past pipeline runs",
		Long: `History lists and shows runs recorded in the local run database.
Every 'gridrun run' archives its full report there unless --no-history
was given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "history-db", "", "Path to the run history database (default: user config dir)")

	cmd.AddCommand(newListCommand(&dbPath))
	cmd.AddCommand(newShowCommand(&dbPath))
	cmd.AddCommand(newPruneCommand(&dbPath))

	return cmd
}

func openStore(dbPath string) (*history.Store, error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

func newListCommand(dbPath *string) *cobra.Command {
	var (
		pipelineName string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Example: `  # Twenty most recent runs
  gridrun history list

  # Runs of one pipeline
  gridrun history list --pipeline tests --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dbPath)
			if err != nil {
				return shared.NewRunError("failed to open history", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), pipelineName, limit)
			if err != nil {
				return shared.NewRunError("failed to list runs", err)
			}

			if shared.GetJSON() {
				return output.EmitJSONSuccess("history list", runs)
			}

			if len(runs) == 0 {
				cmd.Println("No recorded runs.")
				return nil
			}
			for _, r := range runs {
				cmd.Printf("%s  %-10s %-20s %d/%d failed  %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Status,
					r.Pipeline,
					r.JobsFailed, r.JobsTotal,
					r.RunID,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "Only list runs of this pipeline")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func newShowCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dbPath)
			if err != nil {
				return shared.NewRunError("failed to open history", err)
			}
			defer store.Close()

			result, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return shared.NewRunError("failed to load run", err)
			}

			if shared.GetJSON() {
				return output.EmitJSON(result)
			}

			reporter := output.NewReporter(cmd.OutOrStdout(), shared.GetVerbose())
			reporter.Render(result)
			return nil
		},
	}
}

func newPruneCommand(dbPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dbPath)
			if err != nil {
				return shared.NewRunError("failed to open history", err)
			}
			defer store.Close()

			deleted, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return shared.NewRunError("failed to prune runs", err)
			}

			if shared.GetJSON() {
				return output.EmitJSONSuccess("history prune", map[string]int64{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete runs older than this duration")

	return cmd
}
