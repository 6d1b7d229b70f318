package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wavectl/wavectl/pkg/engine"
)

// Metadata keys under which the component command lines travel to the
// exec target adapter.
const (
	MetadataDeployCommand   = "deploy"
	MetadataProbeCommand    = "probe"
	MetadataTeardownCommand = "teardown"
)

// Loader parses and preflight-checks registry files.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a registry loader.
func NewLoader() *Loader {
	return &Loader{validator: validator.New()}
}

// Load reads, parses and preflight-checks the registry at path, returning
// the raw registry and the waves ready for the scheduler.
func (l *Loader) Load(path string) (*Registry, []engine.Wave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, engine.NewPermanentError(
			fmt.Sprintf("failed to read registry %s", path), err,
		).WithCode(engine.ErrCodeConfiguration)
	}
	return l.Parse(data)
}

// Parse parses and preflight-checks raw registry bytes.
func (l *Loader) Parse(data []byte) (*Registry, []engine.Wave, error) {
	var registry Registry
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&registry); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, engine.NewPermanentError("failed to parse registry", err).
			WithCode(engine.ErrCodeConfiguration)
	}

	if err := l.validator.Struct(registry); err != nil {
		return nil, nil, engine.NewPermanentError("registry failed validation", err).
			WithCode(engine.ErrCodeConfiguration)
	}

	if err := preflight(&registry); err != nil {
		return nil, nil, err
	}

	return &registry, buildWaves(&registry), nil
}

// preflight runs the load-time graph checks. All violations are collected
// so a broken registry is reported in one pass, each violation naming the
// offending component.
func preflight(registry *Registry) error {
	var violations []string

	// First pass: component name to wave index, catching duplicates.
	waveOf := make(map[string]int)
	total := 0
	for waveIdx, wave := range registry.Waves {
		for _, component := range wave.Components {
			total++
			if _, seen := waveOf[component.Name]; seen {
				violations = append(violations,
					fmt.Sprintf("component %q declared more than once", component.Name))
				continue
			}
			waveOf[component.Name] = waveIdx
		}
	}

	if total == 0 {
		violations = append(violations, "registry contains no components")
	}

	// Second pass: dependency edges.
	for waveIdx, wave := range registry.Waves {
		for _, component := range wave.Components {
			for _, dep := range component.Dependencies {
				if dep == component.Name {
					violations = append(violations,
						fmt.Sprintf("component %q depends on itself", component.Name))
					continue
				}
				depWave, known := waveOf[dep]
				if !known {
					violations = append(violations,
						fmt.Sprintf("component %q depends on unknown component %q",
							component.Name, dep))
					continue
				}
				if depWave >= waveIdx {
					violations = append(violations,
						fmt.Sprintf("component %q (wave %d) depends on %q (wave %d); dependencies must live in an earlier wave",
							component.Name, waveIdx, dep, depWave))
				}
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return engine.NewPermanentError(
		fmt.Sprintf("registry preflight failed: %s", strings.Join(violations, "; ")),
		nil,
	).WithCode(engine.ErrCodeConfiguration).
		WithDetail("violations", violations)
}

// buildWaves converts the registry into the engine's wave form. Wave
// index comes from position in the file; component Required defaults to
// true when unset.
func buildWaves(registry *Registry) []engine.Wave {
	waves := make([]engine.Wave, len(registry.Waves))
	for waveIdx, wave := range registry.Waves {
		components := make([]engine.Component, len(wave.Components))
		for i, cc := range wave.Components {
			required := true
			if cc.Required != nil {
				required = *cc.Required
			}
			components[i] = engine.Component{
				Name:         cc.Name,
				Wave:         waveIdx,
				Dependencies: append([]string(nil), cc.Dependencies...),
				Required:     required,
				HealthCheck:  resolveHealthCheck(registry.Defaults, cc.HealthCheck),
				Env:          cc.Env,
				Metadata: map[string]string{
					MetadataDeployCommand:   cc.Commands.Deploy,
					MetadataProbeCommand:    cc.Commands.Probe,
					MetadataTeardownCommand: cc.Commands.Teardown,
				},
			}
		}
		waves[waveIdx] = engine.Wave{
			Index:      waveIdx,
			Name:       wave.Name,
			Components: components,
		}
	}
	return waves
}
