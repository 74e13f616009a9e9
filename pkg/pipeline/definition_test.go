package pipeline

import (
	"testing"

	pkgerrors "github.com/gridrun/gridrun/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: sklearn-tests
description: Unit tests across interpreters and package managers
fail_fast: true
max_parallel: 3
env:
  OPENBLAS_NUM_THREADS: "1"
matrix:
  axes:
    py: ["3.6", "3.7", "3.8"]
    use_conda: [true, false]
  exclude:
    - py: "3.6"
      use_conda: false
  include:
    - py: "3.8"
      use_conda: true
      code_cov: true
steps:
  - name: install
    run: ./install.sh {{ .py }}
  - name: test
    run: pytest --maxfail=1
    timeout: 600
  - name: coverage
    if: code_cov && !previous_step_failed()
    run: ./upload_coverage.sh
    always_run: true
artifacts:
  - coverage/**/*.xml
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sklearn-tests", def.Name)
	assert.True(t, def.FailFast)
	assert.Equal(t, 3, def.MaxParallel)
	assert.Equal(t, "1", def.Env["OPENBLAS_NUM_THREADS"])
	assert.Equal(t, []string{"coverage/**/*.xml"}, def.Artifacts)

	require.NotNil(t, def.Matrix)
	require.Len(t, def.Matrix.Axes, 2)
	// Axis declaration order survives YAML decoding
	assert.Equal(t, "py", def.Matrix.Axes[0].Name)
	assert.Equal(t, "use_conda", def.Matrix.Axes[1].Name)
	assert.Equal(t, []interface{}{"3.6", "3.7", "3.8"}, def.Matrix.Axes[0].Values)

	require.Len(t, def.Steps, 3)
	assert.Equal(t, "coverage", def.Steps[2].Name)
	assert.True(t, def.Steps[2].AlwaysRun)
	assert.Equal(t, "code_cov && !previous_step_failed()", def.Steps[2].Condition)
}

func TestParseDefinitionDefaults(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: minimal
steps:
  - name: build
    run: make
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultStepTimeout, def.Steps[0].Timeout)
	assert.Equal(t, "sh", def.Steps[0].Shell)
	assert.False(t, def.FailFast)
}

func TestParseDefinitionRoundTrip(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleYAML))
	require.NoError(t, err)

	data, err := def.Serialize()
	require.NoError(t, err)

	again, err := ParseDefinition(data)
	require.NoError(t, err)

	assert.Equal(t, def.Name, again.Name)
	require.Len(t, again.Matrix.Axes, 2)
	assert.Equal(t, "py", again.Matrix.Axes[0].Name)
	assert.Equal(t, jobIDs(Expand(def)), jobIDs(Expand(again)))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", `
steps:
  - name: build
    run: make
`},
		{"no steps", `
name: empty
`},
		{"step without name", `
name: p
steps:
  - run: make
`},
		{"step without run", `
name: p
steps:
  - name: build
`},
		{"duplicate step name", `
name: p
steps:
  - name: build
    run: make
  - name: build
    run: make again
`},
		{"invalid step name", `
name: p
steps:
  - name: Build Things
    run: make
`},
		{"negative timeout", `
name: p
steps:
  - name: build
    run: make
    timeout: -5
`},
		{"reserved axis name", `
name: p
matrix:
  axes:
    steps: [1, 2]
steps:
  - name: build
    run: make
`},
		{"duplicate axis values empty", `
name: p
matrix:
  axes:
    py: []
steps:
  - name: build
    run: make
`},
		{"exclude references unknown axis", `
name: p
matrix:
  axes:
    py: ["3.8"]
  exclude:
    - os_name: linux
steps:
  - name: build
    run: make
`},
		{"reserved include key", `
name: p
matrix:
  axes:
    py: ["3.8"]
  include:
    - env: prod
steps:
  - name: build
    run: make
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			require.Error(t, err)

			var valErr *pkgerrors.ValidationError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestParseDefinitionInvalidYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("name: [unclosed"))
	require.Error(t, err)
}
