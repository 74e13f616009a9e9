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

// Package tracing emits OpenTelemetry spans for pipeline runs. Spans go to
// stderr via the stdout exporter; the run's report on stdout stays clean.
package tracing

import (
	"context"
	"os"

	"github.com/gridrun/gridrun/pkg/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Init sets up a stderr span exporter and returns the tracer plus a shutdown
// function the caller must invoke after the run.
func Init(version string) (trace.Tracer, ShutdownFunc, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("gridrun"),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Tracer("github.com/gridrun/gridrun"), provider.Shutdown, nil
}

// Observer records one span per job and one per step. Step spans are created
// retroactively from result timestamps when the step finishes, so they nest
// under the owning job span without threading contexts through the executor.
type Observer struct {
	tracer trace.Tracer
	runCtx context.Context
}

// NewObserver creates a span-emitting observer. runCtx should carry the run
// span so job spans nest under it.
func NewObserver(tracer trace.Tracer, runCtx context.Context) *Observer {
	return &Observer{tracer: tracer, runCtx: runCtx}
}

// JobStarted implements pipeline.Observer. Span creation happens at
// completion time, when the timestamps are known.
func (o *Observer) JobStarted(*pipeline.JobInstance) {}

// JobCompleted implements pipeline.Observer.
func (o *Observer) JobCompleted(result pipeline.JobResult) {
	opts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("gridrun.job.id", result.ID),
			attribute.String("gridrun.job.status", string(result.Status)),
		),
	}
	if !result.StartedAt.IsZero() {
		opts = append(opts, trace.WithTimestamp(result.StartedAt))
	}

	jobCtx, span := o.tracer.Start(o.runCtx, "job "+result.ID, opts...)

	for i := range result.Steps {
		o.stepSpan(jobCtx, &result.Steps[i])
	}

	if result.CompletedAt.IsZero() {
		span.End()
		return
	}
	span.End(trace.WithTimestamp(result.CompletedAt))
}

// StepCompleted implements pipeline.Observer. Step spans are emitted from
// JobCompleted so they attach to the job span.
func (o *Observer) StepCompleted(string, pipeline.StepResult) {}

func (o *Observer) stepSpan(jobCtx context.Context, step *pipeline.StepResult) {
	if step.Status == pipeline.StepSkipped {
		return
	}

	opts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("gridrun.step.name", step.Name),
			attribute.String("gridrun.step.status", string(step.Status)),
			attribute.Int("gridrun.step.exit_code", step.ExitCode),
		),
	}
	if !step.StartedAt.IsZero() {
		opts = append(opts, trace.WithTimestamp(step.StartedAt))
	}

	_, span := o.tracer.Start(jobCtx, "step "+step.Name, opts...)
	if step.CompletedAt.IsZero() {
		span.End()
		return
	}
	span.End(trace.WithTimestamp(step.CompletedAt))
}
