package pipeline

import (
	"fmt"
	"os"

	"github.com/gridrun/gridrun/pkg/errors"
)

// LoadDefinition reads and parses a pipeline definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{
				Resource: "pipeline",
				ID:       path,
			}
		}
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	return ParseDefinition(data)
}
