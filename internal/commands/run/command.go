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
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridrun/gridrun/internal/commands/shared"
	"github.com/gridrun/gridrun/internal/history"
	"github.com/gridrun/gridrun/internal/log"
	"github.com/gridrun/gridrun/internal/metrics"
	"github.com/gridrun/gridrun/internal/tracing"
	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/gridrun/gridrun/pkg/pipeline/expression"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	maxParallel int
	failFast    bool
	workdir     string
	watch       bool
	filter      string
	metricsAddr string
	traceSpans  bool
	historyPath string
	noHistory   bool
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Expand a pipeline and run its jobs",
		Long: `Run expands the pipeline's matrix into jobs and executes them on a
bounded worker pool. Within a job, steps run in order: a step failure
marks the job failed and later steps are skipped unless they set
always_run or reference always() in their condition. With fail_fast,
a job failure stops jobs that have not started yet; running jobs are
never interrupted.

The report goes to stdout: styled text on a terminal, or the full JSON
report with --json. Logs go to stderr.

See also: gridrun expand, gridrun validate, gridrun history`,
		Example: `  # Run a pipeline
  gridrun run pipeline.yaml

  # Limit concurrency and force fail-fast
  gridrun run pipeline.yaml --max-parallel 2 --fail-fast

  # JSON report, filtered with a jq expression
  gridrun run pipeline.yaml --json --filter '.jobs[] | select(.status == "failed") | .id'

  # Re-run on every change to the pipeline file
  gridrun run pipeline.yaml --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxParallel, "max-parallel", 0, "Maximum concurrent jobs (default: pipeline setting or 4)")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Stop starting new jobs after the first failure (overrides the pipeline setting)")
	cmd.Flags().StringVar(&opts.workdir, "workdir", "", "Working directory for step commands")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch the pipeline file and re-run on changes")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "jq expression applied to the JSON report (implies --json)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&opts.traceSpans, "trace", false, "Emit OpenTelemetry spans to stderr")
	cmd.Flags().StringVar(&opts.historyPath, "history-db", "", "Path to the run history database (default: user config dir)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")

	return cmd
}

func runPipeline(cmd *cobra.Command, path string, opts *options) error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tracer trace.Tracer
	if opts.traceSpans {
		var shutdown tracing.ShutdownFunc
		var err error
		version, _, _ := shared.GetVersion()
		tracer, shutdown, err = tracing.Init(version)
		if err != nil {
			return shared.NewRunError("failed to initialize tracing", err)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	var recorder *metrics.Recorder
	if opts.metricsAddr != "" {
		recorder = metrics.NewRecorder()
		go func() {
			if err := recorder.Serve(ctx, opts.metricsAddr); err != nil {
				logger.Error("metrics listener failed", "error", err.Error())
			}
		}()
	}

	env := runEnv{
		cmd:        cmd,
		opts:       opts,
		logger:     logger,
		tracer:     tracer,
		recorder:   recorder,
		forceFFast: cmd.Flags().Changed("fail-fast"),
	}

	if opts.watch {
		return watchLoop(ctx, path, env)
	}
	return executeOnce(ctx, path, env)
}

// runEnv bundles what a single execution needs, so the watch loop can rerun
// without rebuilding the observability plumbing.
type runEnv struct {
	cmd        *cobra.Command
	opts       *options
	logger     *slog.Logger
	tracer     trace.Tracer
	recorder   *metrics.Recorder
	forceFFast bool
}

// newLogger builds the run logger from the environment, adjusted by the
// global verbosity flags.
func newLogger() *slog.Logger {
	cfg := log.FromEnv()
	if shared.GetVerbose() {
		cfg.Level = "debug"
	}
	if shared.GetQuiet() {
		cfg.Level = "error"
	}
	return log.New(cfg)
}

func executeOnce(ctx context.Context, path string, env runEnv) error {
	opts := env.opts

	def, err := pipeline.LoadDefinition(path)
	if err != nil {
		return shared.NewInvalidPipelineError("failed to load pipeline", err)
	}
	if env.forceFFast {
		def.FailFast = opts.failFast
	}

	observers := []pipeline.Observer{}
	if env.recorder != nil {
		observers = append(observers, env.recorder)
	}

	runCtx := ctx
	var runSpan trace.Span
	if env.tracer != nil {
		runCtx, runSpan = env.tracer.Start(ctx, "pipeline run",
			trace.WithAttributes(attribute.String("gridrun.pipeline", def.Name)))
		observers = append(observers, tracing.NewObserver(env.tracer, runCtx))
	}

	observer := pipeline.MultiObserver(observers...)

	runner := pipeline.NewStepRunner(pipeline.RunnerConfig{
		WorkingDir: opts.workdir,
		Logger:     env.logger,
	})
	executor := pipeline.NewJobExecutor(runner, expression.New(), observer, env.logger)
	scheduler := pipeline.NewScheduler(executor,
		pipeline.WithLogger(env.logger),
		pipeline.WithObserver(observer),
		pipeline.WithMaxParallel(opts.maxParallel),
	)

	result, err := scheduler.Run(ctx, def)
	if err != nil {
		if runSpan != nil {
			runSpan.End()
		}
		return shared.NewRunError("pipeline run failed to start", err)
	}
	if runSpan != nil {
		runSpan.SetAttributes(attribute.String("gridrun.run.status", string(result.Status)))
		runSpan.End()
	}

	// Background context: the run context may already be canceled, the
	// archive write should still happen.
	recordHistory(context.Background(), env, result)

	if err := emitReport(env, result); err != nil {
		return shared.NewRunError("failed to write report", err)
	}

	return exitErrorFor(result)
}

// recordHistory archives the run unless disabled. Archive problems are
// logged, never fatal: the run already happened.
func recordHistory(ctx context.Context, env runEnv, result *pipeline.RunResult) {
	if env.opts.noHistory {
		return
	}

	path := env.opts.historyPath
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			env.logger.Warn("history disabled", "error", err.Error())
			return
		}
	}

	store, err := history.Open(path)
	if err != nil {
		env.logger.Warn("history disabled", "error", err.Error())
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, result); err != nil {
		env.logger.Warn("failed to record run history", "error", err.Error())
	}
}

// exitErrorFor maps the run outcome to the process exit code.
func exitErrorFor(result *pipeline.RunResult) error {
	switch result.Status {
	case pipeline.RunSucceeded:
		return nil
	case pipeline.RunCanceled:
		return &shared.ExitError{Code: shared.ExitCanceled, Message: "run canceled"}
	}

	for i := range result.Jobs {
		for j := range result.Jobs[i].Steps {
			var undefVar *pkgerrors.UndefinedVariableError
			if goerrors.As(result.Jobs[i].Steps[j].Err, &undefVar) {
				return &shared.ExitError{
					Code:    shared.ExitUndefinedVar,
					Message: fmt.Sprintf("job %s: %s", result.Jobs[i].ID, undefVar.UserMessage()),
					Cause:   undefVar,
				}
			}
		}
	}

	counts := result.Counts()
	return &shared.ExitError{
		Code:    shared.ExitRunFailed,
		Message: fmt.Sprintf("%d of %d job(s) failed", counts.Failed, counts.Total),
	}
}
