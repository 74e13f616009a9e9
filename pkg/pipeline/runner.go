package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gridrun/gridrun/internal/log"
	"github.com/gridrun/gridrun/pkg/errors"
)

// RunnerConfig holds configuration for the step runner.
type RunnerConfig struct {
	// WorkingDir is the working directory for step commands
	WorkingDir string

	// Logger for step-level events; nil means slog.Default()
	Logger *slog.Logger
}

// StepRunner executes a single step's rendered command in a shell, capturing
// exit code, stdout, stderr and duration. It is stateless across steps and
// safe for concurrent use by multiple jobs.
type StepRunner struct {
	config RunnerConfig
	logger *slog.Logger
}

// NewStepRunner creates a step runner.
func NewStepRunner(config RunnerConfig) *StepRunner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StepRunner{config: config, logger: logger}
}

// Run renders and executes one step against a job context.
//
// The returned result always carries a terminal status: Succeeded for exit
// code zero, Failed otherwise. Rendering failures and timeouts are reported
// as failed results rather than as a separate error, so the executor treats
// every step outcome uniformly.
func (r *StepRunner) Run(ctx context.Context, step StepDefinition, env map[string]string, data map[string]interface{}) StepResult {
	result := StepResult{
		Name:      step.Name,
		Status:    StepRunning,
		StartedAt: time.Now(),
	}

	command, err := RenderTemplate(step.Run, data)
	if err != nil {
		return r.fail(result, -1, err)
	}
	result.Command = command

	renderedEnv, err := RenderEnv(env, data)
	if err != nil {
		return r.fail(result, -1, err)
	}

	timeout := time.Duration(step.Timeout) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, step.Shell, "-c", command)
	if r.config.WorkingDir != "" {
		cmd.Dir = r.config.WorkingDir
	}

	// Preserve system environment and overlay the job's variables
	cmd.Env = os.Environ()
	for k, v := range renderedEnv {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("step starting",
		log.StepKey, step.Name,
		"command", command,
	)

	runErr := cmd.Run()

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Stdout = strings.TrimRight(stdout.String(), "\n")
	result.Stderr = strings.TrimRight(stderr.String(), "\n")

	log.Trace(r.logger, "step output",
		slog.String(log.StepKey, step.Name),
		slog.String("stdout", result.Stdout),
		slog.String("stderr", result.Stderr),
	)

	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return r.fail(result, -1, &errors.TimeoutError{
				Operation: fmt.Sprintf("step %s", step.Name),
				Duration:  timeout,
				Cause:     runErr,
			})
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return r.fail(result, exitErr.ExitCode(), &errors.ProcessError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   result.Stderr,
			})
		}
		// Shell missing, fork failure and similar
		return r.fail(result, -1, &errors.ProcessError{
			Command: command,
			Cause:   runErr,
		})
	}

	result.Status = StepSucceeded
	result.ExitCode = 0

	r.logger.Debug("step succeeded",
		log.StepKey, step.Name,
		log.DurationKey, result.Duration.Milliseconds(),
	)

	return result
}

// fail finalizes a result as failed with the given exit code and error.
func (r *StepRunner) fail(result StepResult, exitCode int, err error) StepResult {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}
	result.Status = StepFailed
	result.ExitCode = exitCode
	result.Err = err
	result.Error = err.Error()

	r.logger.Debug("step failed",
		log.StepKey, result.Name,
		"exit_code", exitCode,
		"error", err.Error(),
	)

	return result
}
