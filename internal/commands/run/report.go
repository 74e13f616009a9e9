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

package run

import (
	"encoding/json"
	"fmt"

	"github.com/gridrun/gridrun/internal/commands/shared"
	"github.com/gridrun/gridrun/internal/output"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/itchyny/gojq"
)

// emitReport writes the run report to stdout: a jq-filtered or full JSON
// report in JSON mode, the styled text report otherwise.
func emitReport(env runEnv, result *pipeline.RunResult) error {
	if env.opts.filter != "" {
		return emitFiltered(env, result)
	}

	if shared.GetJSON() {
		return output.EmitJSON(result)
	}

	reporter := output.NewReporter(env.cmd.OutOrStdout(), shared.GetVerbose())
	reporter.Render(result)
	return nil
}

// emitFiltered applies a jq expression to the report. The report goes
// through a JSON round-trip first so the query sees plain maps and slices.
func emitFiltered(env runEnv, result *pipeline.RunResult) error {
	query, err := gojq.Parse(env.opts.filter)
	if err != nil {
		return fmt.Errorf("invalid --filter expression: %w", err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	encoder := json.NewEncoder(env.cmd.OutOrStdout())
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if qerr, ok := v.(error); ok {
			return fmt.Errorf("--filter failed: %w", qerr)
		}
		if err := encoder.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
