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

package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/stretchr/testify/assert"
)

func sampleRun() *pipeline.RunResult {
	return &pipeline.RunResult{
		RunID:    "run-1",
		Pipeline: "tests",
		Status:   pipeline.RunFailed,
		Duration: 72 * time.Second,
		Jobs: []pipeline.JobResult{
			{
				ID:       "tests(py=3.7)",
				Status:   pipeline.JobSucceeded,
				Duration: 30 * time.Second,
				Steps: []pipeline.StepResult{
					{Name: "test", Status: pipeline.StepSucceeded, Duration: 30 * time.Second},
				},
			},
			{
				ID:       "tests(py=3.8)",
				Status:   pipeline.JobFailed,
				Duration: 42 * time.Second,
				Steps: []pipeline.StepResult{
					{
						Name:     "test",
						Status:   pipeline.StepFailed,
						ExitCode: 1,
						Stderr:   "assert failed\ncollected 12 items",
						Error:    "command failed with exit code 1",
					},
					{Name: "cleanup", Status: pipeline.StepSkipped, SkipReason: pipeline.SkipAfterFailure},
				},
			},
			{
				ID:         "tests(py=3.9)",
				Status:     pipeline.JobSkipped,
				SkipReason: pipeline.SkipFailFast,
			},
		},
	}
}

func TestReporterRender(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, false).Render(sampleRun())
	out := buf.String()

	assert.Contains(t, out, "tests  run run-1")
	assert.Contains(t, out, "PASS tests(py=3.7)")
	assert.Contains(t, out, "FAIL tests(py=3.8)")
	assert.Contains(t, out, "SKIP tests(py=3.9)  [fail_fast]")
	// Failure details appear without --verbose
	assert.Contains(t, out, "exit 1")
	assert.Contains(t, out, "assert failed")
	assert.Contains(t, out, "3 jobs: 1 succeeded, 1 failed, 1 skipped")
	// Succeeded steps stay hidden without --verbose
	assert.NotContains(t, out, "+ test")
}

func TestReporterVerboseShowsAllSteps(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, true).Render(sampleRun())
	out := buf.String()

	assert.Contains(t, out, "+ test")
	assert.Contains(t, out, "- cleanup")
}
