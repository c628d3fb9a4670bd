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

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		transform  string
		uriOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "get <conn-id>",
		Short: "Get a single connection value",
		Long: `Resolve a connection id through the backend search chain and print its
stored value.

By default the raw serialized value is printed, making the command
suitable for scripting.

Examples:
  # Get a connection value
  skein get pg_default

  # Get value with metadata in JSON format
  skein get pg_default --json

  # Extract a field from a JSON-encoded connection
  skein get pg_default --transform 'json_extract:.password'

  # Use in scripts
  export DATABASE_URL=$(skein get pg_default --uri)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return skerrors.UserError{
					Message:    "Connection id is required",
					Suggestion: "Use: skein get <conn-id>",
				}
			}
			connID := args[0]

			if err := cfg.Load(); err != nil {
				return err
			}

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				return fmt.Errorf("failed to register backends: %w", err)
			}

			ctx := context.Background()

			if uriOutput {
				conn, source, err := resolver.GetConnection(ctx, connID)
				if err != nil {
					return err
				}
				cfg.Logger.Debug("Resolved '%s' from backend '%s'", connID, source)
				fmt.Print(conn.URI())
				return nil
			}

			value, source, err := resolver.GetConnValue(ctx, connID)
			if err != nil {
				return err
			}
			cfg.Logger.Debug("Resolved '%s' from backend '%s'", connID, source)

			if transform != "" {
				value, err = resolve.Transform(value, transform)
				if err != nil {
					return skerrors.UserError{
						Message:    fmt.Sprintf("Transform failed for '%s'", connID),
						Details:    err.Error(),
						Suggestion: "Check the --transform chain syntax, e.g. 'trim|json_extract:.password'",
						Err:        err,
					}
				}
			}

			if jsonOutput {
				output := map[string]interface{}{
					"conn_id": connID,
					"value":   value,
					"backend": source,
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(output); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
			} else {
				fmt.Print(value)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value with metadata as JSON")
	cmd.Flags().BoolVar(&uriOutput, "uri", false, "Print the canonical URI form of the connection")
	cmd.Flags().StringVar(&transform, "transform", "", "Transform chain to apply to the value (e.g. 'json_extract:.host')")

	return cmd
}
