// Package config loads and validates the skein.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/logging"
)

// DefaultTimeoutMs is the per-backend operation timeout when a backend
// block does not set timeout_ms.
const DefaultTimeoutMs = 30000

// Config holds the runtime configuration shared by all commands.
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition is the parsed skein.yaml structure.
type Definition struct {
	Version int `yaml:"version"`

	// Backends maps a backend name to its configuration block.
	Backends map[string]BackendConfig `yaml:"backends"`

	// SearchOrder lists backend names in resolution order. When empty,
	// backends are searched in name order with "env" promoted to the
	// front, matching the conventional env-first lookup.
	SearchOrder []string `yaml:"search_order,omitempty"`

	Migration MigrationConfig `yaml:"migration,omitempty"`
	Fragments FragmentsConfig `yaml:"fragments,omitempty"`
}

// BackendConfig holds one backend block. Unknown keys land in Config and
// are interpreted by the backend factory.
type BackendConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// Timeout returns the configured per-operation timeout in milliseconds.
func (b BackendConfig) Timeout() int {
	if b.TimeoutMs > 0 {
		return b.TimeoutMs
	}
	return DefaultTimeoutMs
}

// MigrationConfig configures the removed-API scanner.
type MigrationConfig struct {
	// Paths are the roots scanned by `skein lint` when no arguments are
	// given.
	Paths []string `yaml:"paths,omitempty"`

	// Exclude lists directory names skipped during scanning.
	Exclude []string `yaml:"exclude,omitempty"`

	// Rules adds project-local renames on top of the built-in registry.
	Rules []MigrationRule `yaml:"rules,omitempty"`
}

// MigrationRule is one old-symbol to new-symbol mapping from skein.yaml.
type MigrationRule struct {
	Rule      string `yaml:"rule"`
	Old       string `yaml:"old"`
	New       string `yaml:"new"`
	Reason    string `yaml:"reason,omitempty"`
	RemovedIn string `yaml:"removed_in,omitempty"`
}

// FragmentsConfig configures release-note fragment handling.
type FragmentsConfig struct {
	// Dir is where newsfragment files live. Defaults to "newsfragments".
	Dir string `yaml:"dir,omitempty"`
}

// Load reads and parses the skein.yaml file at c.Path.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return skerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Run 'skein init' to create a new configuration file",
			}
		}
		return skerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return skerrors.ConfigError{
			Field:      "yaml",
			Message:    fmt.Sprintf("failed to parse %s: %v", c.Path, err),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if err := def.validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

func (d *Definition) validate() error {
	if d.Version != 1 {
		return skerrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 1'",
		}
	}

	for name, bc := range d.Backends {
		if bc.Type == "" {
			return skerrors.ConfigError{
				Field:      "backends." + name + ".type",
				Message:    "backend has no type",
				Suggestion: "Run 'skein backends' to list supported backend types",
			}
		}
	}

	for _, name := range d.SearchOrder {
		if _, ok := d.Backends[name]; !ok {
			return skerrors.ConfigError{
				Field:      "search_order",
				Value:      name,
				Message:    "search_order references an undefined backend",
				Suggestion: "Every entry in search_order must name a key under 'backends'",
			}
		}
	}

	return nil
}

// GetBackend returns the configuration block for a named backend.
func (c *Config) GetBackend(name string) (BackendConfig, error) {
	if c.Definition == nil {
		return BackendConfig{}, fmt.Errorf("configuration not loaded")
	}
	bc, ok := c.Definition.Backends[name]
	if !ok {
		var available []string
		for n := range c.Definition.Backends {
			available = append(available, n)
		}
		sort.Strings(available)
		return BackendConfig{}, skerrors.ConfigError{
			Field:      "backends",
			Value:      name,
			Message:    "backend not defined",
			Suggestion: fmt.Sprintf("Defined backends: %v", available),
		}
	}
	return bc, nil
}

// ResolvedSearchOrder returns the backend chain in resolution order.
func (c *Config) ResolvedSearchOrder() []string {
	if c.Definition == nil {
		return nil
	}
	if len(c.Definition.SearchOrder) > 0 {
		order := make([]string, len(c.Definition.SearchOrder))
		copy(order, c.Definition.SearchOrder)
		return order
	}

	var names []string
	for name := range c.Definition.Backends {
		if name != "env" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := c.Definition.Backends["env"]; ok {
		names = append([]string{"env"}, names...)
	}
	return names
}

// FragmentsDir returns the configured newsfragment directory.
func (c *Config) FragmentsDir() string {
	if c.Definition != nil && c.Definition.Fragments.Dir != "" {
		return c.Definition.Fragments.Dir
	}
	return "newsfragments"
}
