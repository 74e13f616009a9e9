package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/gridrun/gridrun/pkg/errors"
)

// RenderTemplate renders a command or env-value template against the job
// context. Templates use Go template syntax over the same data conditions
// see: matrix keys at the top level, plus the matrix, steps and env
// namespaces.
//
//	pytest --cov={{ .pkg }} --maxfail={{ .env.MAXFAIL }}
//
// Referencing a key that is not defined for the job is an error, the same
// strictness conditions get.
func RenderTemplate(text string, data map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("step").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &errors.ValidationError{
			Field:      "run",
			Message:    fmt.Sprintf("invalid template: %s", err.Error()),
			Suggestion: "check the {{ }} placeholders for syntax errors",
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &errors.ValidationError{
			Field:      "run",
			Message:    fmt.Sprintf("template rendering failed: %s", err.Error()),
			Suggestion: "ensure every referenced key is defined for this job",
		}
	}

	return buf.String(), nil
}

// RenderEnv renders each value of an environment map against the job
// context, leaving keys untouched.
func RenderEnv(env map[string]string, data map[string]interface{}) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	rendered := make(map[string]string, len(env))
	for k, v := range env {
		rv, err := RenderTemplate(v, data)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		rendered[k] = rv
	}
	return rendered, nil
}
