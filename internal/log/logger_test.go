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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRunContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithRunContext(logger, "run-1", "tests").Info("run started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry[RunIDKey])
	assert.Equal(t, "tests", entry[PipelineKey])
}

func TestWithJobContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithJobContext(logger, "tests(py=3.8)").Info("job started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tests(py=3.8)", entry[JobIDKey])
}

func TestTraceLevelGating(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	Trace(logger, "step output")
	assert.Empty(t, buf.String())

	logger = New(&Config{Level: "trace", Format: FormatText, Output: &buf})
	Trace(logger, "step output", slog.String(StepKey, "build"))
	assert.Contains(t, buf.String(), "step output")
	assert.Contains(t, buf.String(), "step=build")
}
