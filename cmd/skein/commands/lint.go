package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/metrics"
	"github.com/skeinworks/skein/internal/migrate"
)

func NewLintCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "lint [path...]",
		Short: "Scan Python sources for removed backend APIs",
		Long: `Scan Python files for calls to methods that have been removed from the
secrets backend interface, such as get_conn_uri and get_connections.

Paths default to the migration paths in skein.yaml, then the working
directory. Findings are reported with file, line, and the replacement
method; the command exits non-zero when any are found.

Examples:
  skein lint
  skein lint dags/ plugins/
  skein lint --json > findings.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			registry, err := migrationRegistry(cfg)
			if err != nil {
				return err
			}

			scanner := migrate.NewScanner(registry, cfg.Definition.Migration.Exclude)

			ctx := context.Background()
			var findings []migrate.Finding
			for _, root := range scanRoots(cfg, args) {
				found, err := scanner.ScanDir(ctx, root)
				if err != nil {
					return skerrors.UserError{
						Message:    fmt.Sprintf("Scan failed for '%s'", root),
						Details:    err.Error(),
						Suggestion: "Check that the path exists and contains readable Python files",
						Err:        err,
					}
				}
				findings = append(findings, found...)
			}

			metrics.ObserveScan(migrate.CountByRule(findings))

			report := migrate.NewReport(findings)
			if jsonOutput {
				if err := report.WriteJSON(os.Stdout); err != nil {
					return err
				}
			} else {
				if err := report.WriteText(os.Stdout); err != nil {
					return err
				}
			}

			if report.Total > 0 {
				return skerrors.UserError{
					Message:    fmt.Sprintf("Found %d removed API usage(s)", report.Total),
					Suggestion: "Run 'skein fix' to rewrite them automatically",
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output findings as JSON")

	return cmd
}
