package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/resolve"
)

func NewVariablesCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variables",
		Short: "Inspect stored variables",
		Long:  "Resolve plain variables through the backend search chain.",
	}

	cmd.AddCommand(newVariablesGetCommand(cfg))

	return cmd
}

func newVariablesGetCommand(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		transform  string
	)

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a single variable value",
		Long: `Resolve a variable key and print its value.

Only backends that support variables are consulted.

Examples:
  skein variables get feature_flags
  skein variables get feature_flags --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			if err := cfg.Load(); err != nil {
				return err
			}

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				return fmt.Errorf("failed to register backends: %w", err)
			}

			ctx := context.Background()
			value, source, err := resolver.GetVariable(ctx, key)
			if err != nil {
				return err
			}
			cfg.Logger.Debug("Resolved variable '%s' from backend '%s'", key, source)

			if transform != "" {
				value, err = resolve.Transform(value, transform)
				if err != nil {
					return skerrors.UserError{
						Message:    fmt.Sprintf("Transform failed for '%s'", key),
						Details:    err.Error(),
						Suggestion: "Check the --transform chain syntax, e.g. 'trim|json_extract:.enabled'",
						Err:        err,
					}
				}
			}

			if jsonOutput {
				output := map[string]interface{}{
					"key":     key,
					"value":   value,
					"backend": source,
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(output)
			}

			fmt.Print(value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value with metadata as JSON")
	cmd.Flags().StringVar(&transform, "transform", "", "Transform chain to apply to the value")

	return cmd
}
