package pipeline

import (
	"fmt"
	"reflect"
	"strings"
)

// JobInstance is one expanded point of the matrix: a concrete assignment of
// values to keys, plus the identity metadata the scheduler and report use.
// Instances are immutable once expansion finishes.
type JobInstance struct {
	// ID is the stable identifier, derived from the pipeline name and the
	// job's key/value assignment: "tests(py=3.8, use_conda=true)"
	ID string `json:"id"`

	// Pipeline is the owning pipeline name
	Pipeline string `json:"pipeline"`

	// Values maps key to value for this instance. Includes may add keys
	// beyond the declared axes.
	Values map[string]interface{} `json:"values"`

	// Keys holds the value keys in stable order: axis declaration order
	// first, then include-added keys in first-seen order.
	Keys []string `json:"keys"`
}

// Expand expands a pipeline definition into its job instances.
//
// Expansion is the Cartesian product of the axes in declaration order (the
// first axis varies slowest), then the exclude list and the include list are
// applied, each in declaration order. Excludes run before includes, so an
// include can reintroduce a combination an exclude removed. The result is
// deterministic: the same definition always yields the same instances in the
// same order.
//
// A definition without a matrix expands to a single job carrying no values.
func Expand(def *Definition) []*JobInstance {
	var jobs []*JobInstance
	if def.Matrix == nil || len(def.Matrix.Axes) == 0 {
		jobs = []*JobInstance{{
			Pipeline: def.Name,
			Values:   map[string]interface{}{},
		}}
		jobs = applyOverrides(def, jobs)
		for _, job := range jobs {
			job.ID = jobID(def.Name, job)
		}
		return jobs
	}
	product(def.Matrix.Axes, map[string]interface{}{}, func(values map[string]interface{}) {
		keys := make([]string, 0, len(def.Matrix.Axes))
		copied := make(map[string]interface{}, len(values))
		for _, axis := range def.Matrix.Axes {
			keys = append(keys, axis.Name)
			copied[axis.Name] = values[axis.Name]
		}
		jobs = append(jobs, &JobInstance{
			Pipeline: def.Name,
			Values:   copied,
			Keys:     keys,
		})
	})

	jobs = applyOverrides(def, jobs)

	for _, job := range jobs {
		job.ID = jobID(def.Name, job)
	}
	return jobs
}

// product walks the Cartesian product of the axes recursively, calling emit
// once per complete assignment. Axis order determines iteration order.
func product(axes []MatrixAxis, partial map[string]interface{}, emit func(map[string]interface{})) {
	if len(axes) == 0 {
		emit(partial)
		return
	}
	axis := axes[0]
	for _, value := range axis.Values {
		partial[axis.Name] = value
		product(axes[1:], partial, emit)
	}
	delete(partial, axis.Name)
}

// applyOverrides runs the exclude pass and then the include pass over the
// expanded instances.
func applyOverrides(def *Definition, jobs []*JobInstance) []*JobInstance {
	if def.Matrix == nil {
		return jobs
	}

	for _, exclude := range def.Matrix.Exclude {
		kept := jobs[:0]
		for _, job := range jobs {
			if !matches(job, exclude) {
				kept = append(kept, job)
			}
		}
		jobs = kept
	}

	for _, include := range def.Matrix.Include {
		merged := false
		for _, job := range jobs {
			if sharesKey(job, include) && matches(job, include) {
				mergeInto(job, include)
				merged = true
			}
		}
		if merged {
			continue
		}
		if !anyShared(jobs, include) && len(jobs) > 0 {
			// An include naming only new keys extends every instance.
			for _, job := range jobs {
				mergeInto(job, include)
			}
			continue
		}
		jobs = append(jobs, newIncludeJob(def.Name, include, def.Matrix))
	}

	return jobs
}

// matches reports whether every override key present in the job's values is
// equal there. Keys the job does not carry are ignored, so a partial override
// matches on the keys it names.
func matches(job *JobInstance, ov Override) bool {
	for key, want := range ov {
		got, ok := job.Values[key]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// sharesKey reports whether the override names at least one key the job
// already carries.
func sharesKey(job *JobInstance, ov Override) bool {
	for key := range ov {
		if _, ok := job.Values[key]; ok {
			return true
		}
	}
	return false
}

func anyShared(jobs []*JobInstance, ov Override) bool {
	for _, job := range jobs {
		if sharesKey(job, ov) {
			return true
		}
	}
	return false
}

// mergeInto overlays the override onto the job, recording newly added keys in
// first-seen order.
func mergeInto(job *JobInstance, ov Override) {
	// Iterate existing keys first so merge order is stable regardless of
	// map iteration order.
	for _, key := range job.Keys {
		if v, ok := ov[key]; ok {
			job.Values[key] = v
		}
	}
	added := []string{}
	for key := range ov {
		if _, ok := job.Values[key]; !ok {
			added = append(added, key)
		}
	}
	sortStrings(added)
	for _, key := range added {
		job.Values[key] = ov[key]
		job.Keys = append(job.Keys, key)
	}
}

// newIncludeJob builds a fresh instance for an include that matched nothing.
// Axis keys come first in the stable order, then the include's own keys.
func newIncludeJob(pipeline string, ov Override, matrix *MatrixDefinition) *JobInstance {
	job := &JobInstance{
		Pipeline: pipeline,
		Values:   make(map[string]interface{}, len(ov)),
	}
	for _, axis := range matrix.Axes {
		if v, ok := ov[axis.Name]; ok {
			job.Values[axis.Name] = v
			job.Keys = append(job.Keys, axis.Name)
		}
	}
	extra := []string{}
	for key := range ov {
		if _, ok := job.Values[key]; !ok {
			extra = append(extra, key)
		}
	}
	sortStrings(extra)
	for _, key := range extra {
		job.Values[key] = ov[key]
		job.Keys = append(job.Keys, key)
	}
	return job
}

// jobID formats the stable identifier for an instance.
func jobID(pipeline string, job *JobInstance) string {
	if len(job.Keys) == 0 {
		return pipeline
	}
	parts := make([]string, 0, len(job.Keys))
	for _, key := range job.Keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, job.Values[key]))
	}
	return fmt.Sprintf("%s(%s)", pipeline, strings.Join(parts, ", "))
}

// sortStrings is a small in-place insertion sort; override key sets are tiny.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
