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
	"encoding/json"
	"io"
	"os"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError represents a structured error with code, message and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	Step       string `json:"step,omitempty"`
}

// EmitJSON marshals a response to JSON and outputs it to stdout.
// This ensures consistent formatting and error handling across all commands.
func EmitJSON(response interface{}) error {
	return EmitJSONTo(os.Stdout, response)
}

// EmitJSONTo marshals a response to JSON on the given writer.
func EmitJSONTo(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSONError creates and emits a JSON error response
func EmitJSONError(command string, errors []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	resp := errorResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: false,
		},
		Errors: errors,
	}

	return EmitJSON(resp)
}

// EmitJSONSuccess wraps data in the success envelope and emits it.
func EmitJSONSuccess(command string, data interface{}) error {
	type successResponse struct {
		JSONResponse
		Data interface{} `json:"data,omitempty"`
	}

	resp := successResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: true,
		},
		Data: data,
	}

	return EmitJSON(resp)
}
