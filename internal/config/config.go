// Package config provides unified configuration loading for opynions.
// It supports loading from YAML files, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/opynions/internal/constants"
)

// ErrUnknownKey is returned by Get and Set for keys that do not exist.
var ErrUnknownKey = errors.New("unknown configuration key")

// OpynionsConfig contains all opynions configuration settings.
type OpynionsConfig struct {
	// Simulation holds the parameters of a single run.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Sweep holds defaults for grid and axis sweeps.
	Sweep SweepConfig `json:"sweep" yaml:"sweep"`

	// Storage locates the results database.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures a single simulation run.
type SimulationConfig struct {
	Nodes      int     `json:"nodes" yaml:"nodes"`
	Steps      int     `json:"steps" yaml:"steps"`
	Attachment int     `json:"attachment" yaml:"attachment"`
	Mu         float64 `json:"mu" yaml:"mu"`
	Epsilon    float64 `json:"epsilon" yaml:"epsilon"`
}

// SweepConfig configures the sweep orchestrator.
type SweepConfig struct {
	// Runs is the number of independent runs averaged per point.
	Runs int `json:"runs" yaml:"runs"`

	// Workers caps the worker pool. 0 uses every CPU.
	Workers int `json:"workers" yaml:"workers"`

	// Seed fixes the base seed. 0 draws a fresh seed per sweep.
	Seed uint64 `json:"seed" yaml:"seed"`

	Epsilon RangeConfig `json:"epsilon" yaml:"epsilon"`
	Mu      RangeConfig `json:"mu" yaml:"mu"`
}

// RangeConfig describes an evenly spaced parameter axis.
type RangeConfig struct {
	Start  float64 `json:"start" yaml:"start"`
	Stop   float64 `json:"stop" yaml:"stop"`
	Points int     `json:"points" yaml:"points"`
}

// StorageConfig configures the results database.
type StorageConfig struct {
	// Path overrides the database location. Empty uses
	// <root>/.opynions/opynions.db. Supports ${VAR} expansion.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the sweep event trace in .opynions/events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns an OpynionsConfig with sensible defaults.
func Default() *OpynionsConfig {
	axis := RangeConfig{
		Start:  constants.DefaultRangeStart,
		Stop:   constants.DefaultRangeStop,
		Points: constants.DefaultGridPoints,
	}
	return &OpynionsConfig{
		Simulation: SimulationConfig{
			Nodes:      constants.DefaultNodes,
			Steps:      constants.DefaultSteps,
			Attachment: constants.DefaultAttachment,
			Mu:         constants.DefaultMu,
			Epsilon:    constants.DefaultEpsilon,
		},
		Sweep: SweepConfig{
			Runs:    constants.DefaultRuns,
			Epsilon: axis,
			Mu:      axis,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GlobalPath returns ~/.opynions/config.yaml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, constants.DirName, constants.ConfigFile), nil
}

// LocalPath returns <root>/.opynions/config.yaml.
func LocalPath(root string) string {
	return filepath.Join(root, constants.DirName, constants.ConfigFile)
}

// Load loads configuration from the default locations and environment.
// Order: defaults -> ~/.opynions/config.yaml -> <root>/.opynions/config.yaml
// -> <root>/.env -> OPYNIONS_* environment variables.
// An empty root skips the project file and .env.
func Load(root string) (*OpynionsConfig, error) {
	config := Default()

	if path, err := GlobalPath(); err == nil {
		if err := mergeFile(config, path); err != nil {
			return nil, err
		}
	}
	if root != "" {
		if err := mergeFile(config, LocalPath(root)); err != nil {
			return nil, err
		}
		// .env never overrides variables already in the environment.
		if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	config.Storage.Path = expandEnvVars(config.Storage.Path)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults.
func LoadFromFile(path string) (*OpynionsConfig, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	config.Storage.Path = expandEnvVars(config.Storage.Path)
	return config, nil
}

// mergeFile overlays the YAML file at path onto config. A missing file is
// not an error.
func mergeFile(config *OpynionsConfig, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes config as YAML to path, creating the directory.
func SaveToFile(config *OpynionsConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *OpynionsConfig) Validate() error {
	s := c.Simulation
	if s.Nodes < 2 {
		return fmt.Errorf("simulation.nodes must be at least 2, got %d", s.Nodes)
	}
	if s.Steps < 2 {
		return fmt.Errorf("simulation.steps must be at least 2, got %d", s.Steps)
	}
	if s.Attachment < 1 || s.Attachment >= s.Nodes {
		return fmt.Errorf("simulation.attachment must be in [1, %d), got %d", s.Nodes, s.Attachment)
	}
	if s.Mu < 0 || s.Mu > 1 {
		return fmt.Errorf("simulation.mu must be between 0 and 1, got %f", s.Mu)
	}
	if s.Epsilon < 0 || s.Epsilon > 1 {
		return fmt.Errorf("simulation.epsilon must be between 0 and 1, got %f", s.Epsilon)
	}

	if c.Sweep.Runs < 1 {
		return fmt.Errorf("sweep.runs must be at least 1, got %d", c.Sweep.Runs)
	}
	if c.Sweep.Workers < 0 {
		return fmt.Errorf("sweep.workers must be non-negative, got %d", c.Sweep.Workers)
	}
	for name, r := range map[string]RangeConfig{"sweep.epsilon": c.Sweep.Epsilon, "sweep.mu": c.Sweep.Mu} {
		if r.Points < 1 {
			return fmt.Errorf("%s.points must be at least 1, got %d", name, r.Points)
		}
		if r.Start < 0 || r.Stop > 1 || r.Start > r.Stop {
			return fmt.Errorf("%s range [%f, %f] must be ordered within [0, 1]", name, r.Start, r.Stop)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// field binds a dotted key to typed accessors on the config.
type field struct {
	get func(c *OpynionsConfig) any
	set func(c *OpynionsConfig, v string) error
}

func intField(p func(c *OpynionsConfig) *int) field {
	return field{
		get: func(c *OpynionsConfig) any { return *p(c) },
		set: func(c *OpynionsConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer: %s", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func floatField(p func(c *OpynionsConfig) *float64) field {
	return field{
		get: func(c *OpynionsConfig) any { return *p(c) },
		set: func(c *OpynionsConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*p(c) = f
			return nil
		},
	}
}

func stringField(p func(c *OpynionsConfig) *string) field {
	return field{
		get: func(c *OpynionsConfig) any { return *p(c) },
		set: func(c *OpynionsConfig, v string) error {
			*p(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"simulation.nodes":      intField(func(c *OpynionsConfig) *int { return &c.Simulation.Nodes }),
	"simulation.steps":      intField(func(c *OpynionsConfig) *int { return &c.Simulation.Steps }),
	"simulation.attachment": intField(func(c *OpynionsConfig) *int { return &c.Simulation.Attachment }),
	"simulation.mu":         floatField(func(c *OpynionsConfig) *float64 { return &c.Simulation.Mu }),
	"simulation.epsilon":    floatField(func(c *OpynionsConfig) *float64 { return &c.Simulation.Epsilon }),
	"sweep.runs":            intField(func(c *OpynionsConfig) *int { return &c.Sweep.Runs }),
	"sweep.workers":         intField(func(c *OpynionsConfig) *int { return &c.Sweep.Workers }),
	"sweep.seed": {
		get: func(c *OpynionsConfig) any { return c.Sweep.Seed },
		set: func(c *OpynionsConfig, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed: %s", v)
			}
			c.Sweep.Seed = n
			return nil
		},
	},
	"sweep.epsilon.start":  floatField(func(c *OpynionsConfig) *float64 { return &c.Sweep.Epsilon.Start }),
	"sweep.epsilon.stop":   floatField(func(c *OpynionsConfig) *float64 { return &c.Sweep.Epsilon.Stop }),
	"sweep.epsilon.points": intField(func(c *OpynionsConfig) *int { return &c.Sweep.Epsilon.Points }),
	"sweep.mu.start":       floatField(func(c *OpynionsConfig) *float64 { return &c.Sweep.Mu.Start }),
	"sweep.mu.stop":        floatField(func(c *OpynionsConfig) *float64 { return &c.Sweep.Mu.Stop }),
	"sweep.mu.points":      intField(func(c *OpynionsConfig) *int { return &c.Sweep.Mu.Points }),
	"storage.path":         stringField(func(c *OpynionsConfig) *string { return &c.Storage.Path }),
	"logging.level":        stringField(func(c *OpynionsConfig) *string { return &c.Logging.Level }),
}

// Keys returns every dotted configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at a dotted key such as "sweep.runs".
func (c *OpynionsConfig) Get(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	return f.get(c), nil
}

// Set parses value into the dotted key and revalidates the config. On a
// validation failure the previous value is restored.
func (c *OpynionsConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	prev := *c
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := c.Validate(); err != nil {
		*c = prev
		return err
	}
	return nil
}

// applyEnvOverrides applies OPYNIONS_<SECTION>_<KEY> variables, e.g.
// OPYNIONS_SWEEP_RUNS or OPYNIONS_LOG_LEVEL.
func applyEnvOverrides(config *OpynionsConfig) error {
	for _, key := range Keys() {
		name := constants.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if err := fields[key].set(config, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if v := os.Getenv(constants.EnvPrefix + "LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
