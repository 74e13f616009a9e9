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

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(runID, pipelineName string, status pipeline.RunStatus, started time.Time) *pipeline.RunResult {
	return &pipeline.RunResult{
		RunID:     runID,
		Pipeline:  pipelineName,
		Status:    status,
		StartedAt: started,
		Duration:  90 * time.Second,
		Jobs: []pipeline.JobResult{
			{
				ID:     pipelineName + "(py=3.8)",
				Status: pipeline.JobSucceeded,
				Values: map[string]interface{}{"py": "3.8"},
				Steps: []pipeline.StepResult{
					{Name: "test", Status: pipeline.StepSucceeded, ExitCode: 0},
				},
			},
		},
	}
}

func TestRecordAndGetRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleResult("run-1", "tests", pipeline.RunSucceeded, time.Now())
	require.NoError(t, store.RecordRun(ctx, want))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Pipeline, got.Pipeline)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "tests(py=3.8)", got.Jobs[0].ID)
	require.Len(t, got.Jobs[0].Steps, 1)
	assert.Equal(t, pipeline.StepSucceeded, got.Jobs[0].Steps[0].Status)
}

func TestGetRunNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	require.Error(t, err)

	var notFound *pkgerrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestListRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-1", "tests", pipeline.RunSucceeded, base)))
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-2", "tests", pipeline.RunFailed, base.Add(time.Minute))))
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-3", "deploy", pipeline.RunSucceeded, base.Add(2*time.Minute))))

	all, err := store.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.Equal(t, "run-3", all[0].RunID)
	assert.Equal(t, "run-1", all[2].RunID)

	tests, err := store.ListRuns(ctx, "tests", 10)
	require.NoError(t, err)
	require.Len(t, tests, 2)

	limited, err := store.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-3", limited[0].RunID)
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-old", "tests", pipeline.RunSucceeded, old)))
	require.NoError(t, store.RecordRun(ctx, sampleResult("run-new", "tests", pipeline.RunSucceeded, time.Now())))

	deleted, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "run-new", remaining[0].RunID)
}
