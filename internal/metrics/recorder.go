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

// Package metrics exposes pipeline execution metrics in Prometheus format.
// The recorder plugs into the scheduler as an observer; the optional HTTP
// listener is meant for watch mode, where runs repeat and scraping makes
// sense.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gridrun/gridrun/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements pipeline.Observer and keeps job/step counters and
// duration histograms in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	stepDuration prometheus.Histogram
	jobsRunning  prometheus.Gauge

	mu      sync.Mutex
	started map[string]bool
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		started:  make(map[string]bool),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrun_jobs_total",
			Help: "Jobs finished, by terminal status.",
		}, []string{"status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrun_steps_total",
			Help: "Steps finished, by terminal status.",
		}, []string{"status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridrun_job_duration_seconds",
			Help:    "Wall-clock job duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"status"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridrun_step_duration_seconds",
			Help:    "Wall-clock step duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridrun_jobs_running",
			Help: "Jobs currently executing.",
		}),
	}
}

// JobStarted implements pipeline.Observer.
func (r *Recorder) JobStarted(job *pipeline.JobInstance) {
	r.mu.Lock()
	r.started[job.ID] = true
	r.mu.Unlock()
	r.jobsRunning.Inc()
}

// JobCompleted implements pipeline.Observer.
//
// The gauge decrement is keyed on whether the job was started, not on its
// terminal status: a job canceled mid-run finishes as skipped but did occupy
// a worker.
func (r *Recorder) JobCompleted(result pipeline.JobResult) {
	r.mu.Lock()
	wasStarted := r.started[result.ID]
	delete(r.started, result.ID)
	r.mu.Unlock()

	r.jobsTotal.WithLabelValues(string(result.Status)).Inc()
	if wasStarted {
		r.jobsRunning.Dec()
		r.jobDuration.WithLabelValues(string(result.Status)).Observe(result.Duration.Seconds())
	}
}

// StepCompleted implements pipeline.Observer.
func (r *Recorder) StepCompleted(_ string, result pipeline.StepResult) {
	r.stepsTotal.WithLabelValues(string(result.Status)).Inc()
	if result.Status == pipeline.StepSucceeded || result.Status == pipeline.StepFailed {
		r.stepDuration.Observe(result.Duration.Seconds())
	}
}

// Handler returns the scrape handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve runs a scrape endpoint on addr until the context is canceled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
