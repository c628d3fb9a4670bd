package commands

import (
	"fmt"
	"sort"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/resolve"
	"github.com/skeinworks/skein/pkg/deprecation"
)

// registerBackends instantiates every configured backend and registers it
// with the resolver.
func registerBackends(resolver *resolve.Resolver, cfg *config.Config) error {
	registry := backends.NewRegistry()

	for name, bc := range cfg.Definition.Backends {
		b, err := registry.Create(name, bc)
		if err != nil {
			return fmt.Errorf("backend '%s': %w", name, err)
		}
		resolver.RegisterBackend(name, b)
	}
	return nil
}

// migrationRegistry builds the deprecation registry: the builtin renames
// plus any project-local rules from skein.yaml.
func migrationRegistry(cfg *config.Config) (*deprecation.Registry, error) {
	registry := deprecation.Builtin()

	if cfg.Definition == nil {
		return registry, nil
	}
	for _, rule := range cfg.Definition.Migration.Rules {
		err := registry.Register(deprecation.Deprecation{
			Rule:      rule.Rule,
			OldSymbol: rule.Old,
			NewSymbol: rule.New,
			Reason:    rule.Reason,
			RemovedIn: rule.RemovedIn,
		})
		if err != nil {
			return nil, fmt.Errorf("migration rule %s: %w", rule.Rule, err)
		}
	}
	return registry, nil
}

// scanRoots returns the directories to scan: explicit args win, then the
// configured paths, then the working directory.
func scanRoots(cfg *config.Config, args []string) []string {
	if len(args) > 0 {
		return args
	}
	if cfg.Definition != nil && len(cfg.Definition.Migration.Paths) > 0 {
		return cfg.Definition.Migration.Paths
	}
	return []string{"."}
}

// sortedBackendNames returns configured backend names in name order.
func sortedBackendNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Definition.Backends))
	for name := range cfg.Definition.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
