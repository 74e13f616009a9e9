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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gridrun/gridrun/pkg/pipeline"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

// Reporter renders run results as human-readable text. Colors are applied
// only when the writer is a terminal.
type Reporter struct {
	out     io.Writer
	color   bool
	verbose bool
}

// NewReporter creates a reporter on the given writer. Color is enabled when
// the writer is a TTY and NO_COLOR is unset.
func NewReporter(out io.Writer, verbose bool) *Reporter {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
	}
	return &Reporter{out: out, color: color, verbose: verbose}
}

// Render writes the full run report: one line per job, failure details for
// failed jobs, and a summary footer.
func (r *Reporter) Render(result *pipeline.RunResult) {
	fmt.Fprintln(r.out, r.style(headerStyle, fmt.Sprintf("%s  run %s", result.Pipeline, result.RunID)))
	fmt.Fprintln(r.out)

	for i := range result.Jobs {
		r.renderJob(&result.Jobs[i])
	}

	fmt.Fprintln(r.out)
	counts := result.Counts()
	summary := fmt.Sprintf("%d jobs: %d succeeded, %d failed, %d skipped  (%s)",
		counts.Total, counts.Succeeded, counts.Failed, counts.Skipped,
		formatDuration(result.Duration))
	if result.Failed() {
		fmt.Fprintln(r.out, r.style(summaryStyle.Inherit(failStyle), summary))
	} else {
		fmt.Fprintln(r.out, r.style(summaryStyle.Inherit(okStyle), summary))
	}
}

func (r *Reporter) renderJob(job *pipeline.JobResult) {
	marker, style := r.jobMarker(job)
	line := fmt.Sprintf("%s %s", marker, job.ID)
	if job.Status == pipeline.JobSkipped {
		line += dimNote(string(job.SkipReason))
	} else {
		line += fmt.Sprintf("  (%s)", formatDuration(job.Duration))
	}
	fmt.Fprintln(r.out, r.style(style, line))

	for i := range job.Steps {
		step := &job.Steps[i]
		if !r.verbose && !step.Failed() {
			continue
		}
		r.renderStep(step)
	}
}

func (r *Reporter) renderStep(step *pipeline.StepResult) {
	switch step.Status {
	case pipeline.StepSkipped:
		fmt.Fprintf(r.out, "    %s %s%s\n",
			r.style(skipStyle, "-"), step.Name, dimNote(string(step.SkipReason)))
	case pipeline.StepFailed:
		fmt.Fprintf(r.out, "    %s %s (exit %d, %s)\n",
			r.style(failStyle, "x"), step.Name, step.ExitCode, formatDuration(step.Duration))
		if step.Error != "" {
			fmt.Fprintf(r.out, "      %s\n", r.style(dimStyle, step.Error))
		}
		if tail := lastLines(step.Stderr, 5); tail != "" {
			for _, line := range strings.Split(tail, "\n") {
				fmt.Fprintf(r.out, "      %s\n", r.style(dimStyle, line))
			}
		}
	default:
		fmt.Fprintf(r.out, "    %s %s (%s)\n",
			r.style(okStyle, "+"), step.Name, formatDuration(step.Duration))
	}
}

func (r *Reporter) jobMarker(job *pipeline.JobResult) (string, lipgloss.Style) {
	switch job.Status {
	case pipeline.JobSucceeded:
		return "PASS", okStyle
	case pipeline.JobFailed:
		return "FAIL", failStyle
	case pipeline.JobSkipped:
		return "SKIP", skipStyle
	default:
		return string(job.Status), dimStyle
	}
}

func (r *Reporter) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func dimNote(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf("  [%s]", reason)
}

// lastLines returns up to n trailing non-empty lines of s.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
