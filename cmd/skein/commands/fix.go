package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/migrate"
)

func NewFixCommand(cfg *config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "fix [path...]",
		Short: "Rewrite removed backend API calls in place",
		Long: `Rewrite Python files that call removed secrets backend methods,
replacing each call with its current name. Only the method name is
touched, so arguments, keyword arguments, and comments survive. Running
fix twice is a no-op.

Paths default to the migration paths in skein.yaml, then the working
directory.

Examples:
  skein fix
  skein fix dags/
  skein fix --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			registry, err := migrationRegistry(cfg)
			if err != nil {
				return err
			}

			exclude := cfg.Definition.Migration.Exclude
			ctx := context.Background()

			if dryRun {
				scanner := migrate.NewScanner(registry, exclude)
				total := 0
				for _, root := range scanRoots(cfg, args) {
					findings, err := scanner.ScanDir(ctx, root)
					if err != nil {
						return fmt.Errorf("scan failed for '%s': %w", root, err)
					}
					for _, f := range findings {
						cfg.Logger.Info("would rewrite %s:%d: %s -> %s", f.File, f.Line, f.OldSymbol, f.NewSymbol)
					}
					total += len(findings)
				}
				cfg.Logger.Info("%d call(s) would be rewritten", total)
				return nil
			}

			fixer := migrate.NewFixer(registry, exclude)
			changed := make(map[string]int)
			for _, root := range scanRoots(cfg, args) {
				fixed, err := fixer.FixDir(ctx, root)
				if err != nil {
					return skerrors.UserError{
						Message:    fmt.Sprintf("Fix failed for '%s'", root),
						Details:    err.Error(),
						Suggestion: "Check that the files are writable. Use --dry-run to preview changes",
						Err:        err,
					}
				}
				for path, count := range fixed {
					changed[path] += count
				}
			}

			if len(changed) == 0 {
				cfg.Logger.Info("No removed API usage found, nothing to fix")
				return nil
			}

			paths := make([]string, 0, len(changed))
			total := 0
			for path, count := range changed {
				paths = append(paths, path)
				total += count
			}
			sort.Strings(paths)
			for _, path := range paths {
				cfg.Logger.Info("✓ %s: rewrote %d call(s)", path, changed[path])
			}
			cfg.Logger.Info("Rewrote %d call(s) in %d file(s)", total, len(paths))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing files")

	return cmd
}
