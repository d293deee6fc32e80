package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/haatos/multi-ci/internal/store"
)

type PipelineResolver interface {
	Resolve(repository *store.Repository) (*PipelineScript, error)
}

// FileResolver reads a repository's pipeline definition from a YAML file
// inside its working copy.
type FileResolver struct{}

func NewFileResolver() *FileResolver {
	return &FileResolver{}
}

func (fr *FileResolver) Resolve(repository *store.Repository) (*PipelineScript, error) {
	scriptPath := filepath.Join(repository.Path, repository.ScriptPath)
	b, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, ConfigError{Path: scriptPath, Err: err}
	}

	ps := new(PipelineScript)
	if err := yaml.Unmarshal(b, ps); err != nil {
		return nil, ConfigError{Path: scriptPath, Err: err}
	}

	for i, step := range ps.Steps {
		if step.Script == "" {
			return nil, ConfigError{
				Path: scriptPath,
				Err:  fmt.Errorf("step %d has an empty script", i),
			}
		}
		if step.TimeoutSeconds < 0 {
			return nil, ConfigError{
				Path: scriptPath,
				Err:  errors.New("timeout_seconds must not be negative"),
			}
		}
	}

	// a pipeline with zero steps is valid and trivially succeeds
	return ps, nil
}
