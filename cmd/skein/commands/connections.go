package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/resolve"
	"github.com/skeinworks/skein/pkg/backend"
)

func NewConnectionsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Inspect stored connections",
		Long:  "Show and list connections resolved through the backend search chain.",
	}

	cmd.AddCommand(newConnectionsShowCommand(cfg))
	cmd.AddCommand(newConnectionsListCommand(cfg))

	return cmd
}

func newConnectionsShowCommand(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput   bool
		showPassword bool
	)

	cmd := &cobra.Command{
		Use:   "show <conn-id>",
		Short: "Show a connection's parsed fields",
		Long: `Resolve a connection id and display its structured fields.

The password is redacted unless --show-password is given.

Examples:
  skein connections show pg_default
  skein connections show pg_default --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connID := args[0]

			if err := cfg.Load(); err != nil {
				return err
			}

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				return fmt.Errorf("failed to register backends: %w", err)
			}

			ctx := context.Background()
			conn, source, err := resolver.GetConnection(ctx, connID)
			if err != nil {
				return err
			}

			display := conn
			if !showPassword {
				display = conn.Redacted()
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(display)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "FIELD\tVALUE\n")
			_, _ = fmt.Fprintf(w, "-----\t-----\n")
			_, _ = fmt.Fprintf(w, "conn_id\t%s\n", display.ConnID)
			_, _ = fmt.Fprintf(w, "conn_type\t%s\n", display.ConnType)
			if display.Description != "" {
				_, _ = fmt.Fprintf(w, "description\t%s\n", display.Description)
			}
			_, _ = fmt.Fprintf(w, "host\t%s\n", display.Host)
			if display.Schema != "" {
				_, _ = fmt.Fprintf(w, "schema\t%s\n", display.Schema)
			}
			_, _ = fmt.Fprintf(w, "login\t%s\n", display.Login)
			_, _ = fmt.Fprintf(w, "password\t%s\n", display.Password)
			if display.Port != 0 {
				_, _ = fmt.Fprintf(w, "port\t%d\n", display.Port)
			}
			for _, key := range sortedExtraKeys(display.Extra) {
				_, _ = fmt.Fprintf(w, "extra.%s\t%s\n", key, display.Extra[key])
			}
			_, _ = fmt.Fprintf(w, "backend\t%s\n", source)
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showPassword, "show-password", false, "Include the password in the output")

	return cmd
}

func newConnectionsListCommand(cfg *config.Config) *cobra.Command {
	var backendName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connection ids from backends that support listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				return fmt.Errorf("failed to register backends: %w", err)
			}

			names := resolver.SearchOrder()
			if backendName != "" {
				if _, ok := resolver.Backend(backendName); !ok {
					return skerrors.UserError{
						Message:    fmt.Sprintf("Backend '%s' is not configured", backendName),
						Suggestion: "Run 'skein backends' to see configured backends",
					}
				}
				names = []string{backendName}
			}

			ctx := context.Background()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "CONN ID\tBACKEND\n")
			_, _ = fmt.Fprintf(w, "-------\t-------\n")

			listed := 0
			for _, name := range names {
				b, _ := resolver.Backend(name)
				lister, ok := b.(backend.Lister)
				if !ok {
					cfg.Logger.Debug("Backend '%s' does not support listing", name)
					continue
				}
				connIDs, err := lister.ListConnIDs(ctx)
				if err != nil {
					cfg.Logger.Warn("Backend '%s' listing failed: %v", name, err)
					continue
				}
				sort.Strings(connIDs)
				for _, id := range connIDs {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", id, name)
					listed++
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if listed == 0 {
				fmt.Println("\nNo listable connections found")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "", "Only list from this backend")

	return cmd
}

func sortedExtraKeys(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
