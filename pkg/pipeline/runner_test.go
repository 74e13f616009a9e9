package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStep(name, run string) StepDefinition {
	return StepDefinition{
		Name:    name,
		Run:     run,
		Shell:   "sh",
		Timeout: 10,
	}
}

func TestStepRunnerSuccess(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})

	result := runner.Run(context.Background(), testStep("echo", "echo hello"), nil, nil)

	assert.Equal(t, StepSucceeded, result.Status)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello", result.Stdout)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.CompletedAt.IsZero())
}

func TestStepRunnerFailure(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})

	result := runner.Run(context.Background(), testStep("fail", "echo oops >&2; exit 3"), nil, nil)

	assert.Equal(t, StepFailed, result.Status)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "oops", result.Stderr)

	var procErr *pkgerrors.ProcessError
	require.ErrorAs(t, result.Err, &procErr)
	assert.Equal(t, 3, procErr.ExitCode)
}

func TestStepRunnerTemplate(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})
	data := map[string]interface{}{
		"py": "3.8",
		"env": map[string]interface{}{
			"SUFFIX": "ok",
		},
	}

	result := runner.Run(context.Background(), testStep("tmpl", "echo py={{ .py }} {{ .env.SUFFIX }}"), nil, data)

	require.Equal(t, StepSucceeded, result.Status)
	assert.Equal(t, "py=3.8 ok", result.Stdout)
	assert.Equal(t, "echo py=3.8 ok", result.Command)
}

func TestStepRunnerTemplateUndefinedKey(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})

	result := runner.Run(context.Background(), testStep("tmpl", "echo {{ .missing }}"), nil, map[string]interface{}{"py": "3.8"})

	assert.Equal(t, StepFailed, result.Status)
	assert.Equal(t, -1, result.ExitCode)

	var valErr *pkgerrors.ValidationError
	require.ErrorAs(t, result.Err, &valErr)
}

func TestStepRunnerEnv(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})
	env := map[string]string{
		"GREETING": "hi {{ .py }}",
	}
	data := map[string]interface{}{"py": "3.8"}

	result := runner.Run(context.Background(), testStep("env", `echo "$GREETING"`), env, data)

	require.Equal(t, StepSucceeded, result.Status)
	assert.Equal(t, "hi 3.8", result.Stdout)
}

func TestStepRunnerWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))
	runner := NewStepRunner(RunnerConfig{WorkingDir: dir})

	result := runner.Run(context.Background(), testStep("ls", "ls"), nil, nil)

	require.Equal(t, StepSucceeded, result.Status)
	assert.Contains(t, result.Stdout, "marker.txt")
}

func TestStepRunnerTimeout(t *testing.T) {
	runner := NewStepRunner(RunnerConfig{})
	step := StepDefinition{
		Name:    "slow",
		Run:     "sleep 5",
		Shell:   "sh",
		Timeout: 1,
	}

	start := time.Now()
	result := runner.Run(context.Background(), step, nil, nil)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, StepFailed, result.Status)

	var timeoutErr *pkgerrors.TimeoutError
	require.ErrorAs(t, result.Err, &timeoutErr)
}
