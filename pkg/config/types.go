package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wavectl/wavectl/pkg/engine"
)

// Duration is a time.Duration that unmarshals from human-readable YAML
// strings such as "5s" or "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Registry is the top-level registry file.
type Registry struct {
	// Name identifies the deployment this registry describes.
	Name string `yaml:"name" validate:"required"`

	// Target selects and configures the deployment target adapter.
	Target TargetConfig `yaml:"target"`

	// Defaults provides health-check settings applied to components that
	// do not override them.
	Defaults *HealthCheckConfig `yaml:"defaults,omitempty"`

	// Waves lists the deployment stages in order. Wave index is positional.
	Waves []WaveConfig `yaml:"waves" validate:"required,min=1,dive"`
}

// TargetConfig selects the target adapter.
type TargetConfig struct {
	// Type is the adapter type. Only "exec" is currently supported.
	Type string `yaml:"type,omitempty" validate:"omitempty,oneof=exec"`

	// Settings is adapter-specific configuration passed through opaquely.
	Settings map[string]string `yaml:"settings,omitempty"`
}

// WaveConfig is one deployment stage.
type WaveConfig struct {
	// Name is an optional human-readable label for the wave.
	Name string `yaml:"name,omitempty"`

	// Components are the units deployed in this wave. An empty wave is
	// allowed and skipped at run time.
	Components []ComponentConfig `yaml:"components,omitempty" validate:"dive"`
}

// ComponentConfig is one deployable unit inside a wave.
type ComponentConfig struct {
	// Name is the component's unique identifier across all waves.
	Name string `yaml:"name" validate:"required"`

	// Required controls the abort policy. Defaults to true.
	Required *bool `yaml:"required,omitempty"`

	// Dependencies lists component names that must be healthy first.
	// Every dependency must live in a strictly earlier wave.
	Dependencies []string `yaml:"dependencies,omitempty"`

	// HealthCheck overrides the registry defaults for this component.
	HealthCheck *HealthCheckConfig `yaml:"health_check,omitempty"`

	// Commands are the shell command lines the exec target runs.
	Commands CommandsConfig `yaml:"commands"`

	// Env is opaque per-component configuration exported to the commands.
	Env map[string]string `yaml:"env,omitempty"`
}

// CommandsConfig holds the per-component command lines.
type CommandsConfig struct {
	// Deploy issues the deploy trigger. Its exit status only reports
	// whether the trigger was accepted, not whether the component is up.
	Deploy string `yaml:"deploy" validate:"required"`

	// Probe checks readiness. Exit 0 means ready, exit 3 means the
	// component is absent, anything else means not ready yet.
	Probe string `yaml:"probe" validate:"required"`

	// Teardown removes the component. It must succeed when the component
	// is already absent; empty means teardown is a no-op.
	Teardown string `yaml:"teardown,omitempty"`
}

// HealthCheckConfig is the YAML form of a health-check schedule.
type HealthCheckConfig struct {
	// InitialInterval is the delay before the second probe.
	InitialInterval *Duration `yaml:"initial_interval,omitempty"`

	// BackoffMultiplier scales the interval after each failed probe.
	BackoffMultiplier *float64 `yaml:"backoff_multiplier,omitempty" validate:"omitempty,gte=1"`

	// MaxInterval caps the computed interval.
	MaxInterval *Duration `yaml:"max_interval,omitempty"`

	// MaxAttempts bounds the total number of probes.
	MaxAttempts *int `yaml:"max_attempts,omitempty" validate:"omitempty,gt=0"`

	// Timeout bounds the cumulative time spent polling.
	Timeout *Duration `yaml:"timeout,omitempty"`
}

// Health-check defaults applied when neither the component nor the
// registry defaults set a field.
const (
	DefaultInitialInterval   = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxInterval       = 60 * time.Second
	DefaultMaxAttempts       = 30
	DefaultTimeout           = 10 * time.Minute
)

// resolveHealthCheck merges component overrides over registry defaults
// over the built-in defaults.
func resolveHealthCheck(defaults, override *HealthCheckConfig) engine.HealthCheckSpec {
	spec := engine.HealthCheckSpec{
		InitialInterval:   DefaultInitialInterval,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxInterval:       DefaultMaxInterval,
		MaxAttempts:       DefaultMaxAttempts,
		Timeout:           DefaultTimeout,
	}
	for _, layer := range []*HealthCheckConfig{defaults, override} {
		if layer == nil {
			continue
		}
		if layer.InitialInterval != nil {
			spec.InitialInterval = layer.InitialInterval.Std()
		}
		if layer.BackoffMultiplier != nil {
			spec.BackoffMultiplier = *layer.BackoffMultiplier
		}
		if layer.MaxInterval != nil {
			spec.MaxInterval = layer.MaxInterval.Std()
		}
		if layer.MaxAttempts != nil {
			spec.MaxAttempts = *layer.MaxAttempts
		}
		if layer.Timeout != nil {
			spec.Timeout = layer.Timeout.Std()
		}
	}
	return spec
}
