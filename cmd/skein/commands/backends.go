package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/backends"
	"github.com/skeinworks/skein/internal/config"
)

func NewBackendsCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List available backends",
		Long: `Display information about available secrets backends.

Shows both built-in backend types and configured backend instances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := backends.NewRegistry()

			fmt.Println("Built-in Backend Types:")
			fmt.Println("======================")

			supportedTypes := registry.SupportedTypes()
			sort.Strings(supportedTypes)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "TYPE\tDESCRIPTION\n")
			_, _ = fmt.Fprintf(w, "----\t-----------\n")

			for _, backendType := range supportedTypes {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", backendType, backendDescription(backendType))
			}
			_ = w.Flush()

			// Show configured backends if a config file is present.
			if err := cfg.Load(); err == nil && cfg.Definition != nil {
				fmt.Println("\nConfigured Backends:")
				fmt.Println("===================")

				if len(cfg.Definition.Backends) == 0 {
					fmt.Println("No backends configured")
				} else {
					w2 := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					_, _ = fmt.Fprintf(w2, "NAME\tTYPE\tSTATUS\n")
					_, _ = fmt.Fprintf(w2, "----\t----\t------\n")

					for _, name := range sortedBackendNames(cfg) {
						bc := cfg.Definition.Backends[name]
						status := "configured"
						if !registry.IsSupported(bc.Type) {
							status = "unsupported"
						}
						_, _ = fmt.Fprintf(w2, "%s\t%s\t%s\n", name, bc.Type, status)
					}
					_ = w2.Flush()

					order := cfg.ResolvedSearchOrder()
					fmt.Printf("\nSearch order: %s\n", strings.Join(order, " -> "))
				}
			}

			if verbose {
				fmt.Println("\nBackend Details:")
				fmt.Println("===============")
				for _, backendType := range supportedTypes {
					fmt.Printf("\n%s:\n", backendType)
					for _, detail := range backendDetails(backendType) {
						fmt.Printf("  • %s\n", detail)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show detailed backend information")

	return cmd
}

// backendDescription returns a one-line description for a backend type.
func backendDescription(backendType string) string {
	descriptions := map[string]string{
		"literal":            "Static literal values for testing",
		"env":                "Environment variables (SKEIN_CONN_*, SKEIN_VAR_*)",
		"file":               "Local YAML or JSON secrets file",
		"metastore":          "SQL metadata database (postgres, mysql)",
		"keyring":            "Operating system keychain",
		"aws.secretsmanager": "AWS Secrets Manager via SDK",
		"aws.ssm":            "AWS Systems Manager Parameter Store",
		"gcp.secretmanager":  "Google Cloud Secret Manager",
		"azure.keyvault":     "Azure Key Vault",
	}
	if desc, ok := descriptions[backendType]; ok {
		return desc
	}
	return "No description available"
}

// backendDetails returns usage notes for a backend type.
func backendDetails(backendType string) []string {
	details := map[string][]string{
		"env": {
			"Connections read from SKEIN_CONN_<ID>, variables from SKEIN_VAR_<KEY>",
			"No configuration required",
		},
		"file": {
			"Requires: path",
			"Connections under the 'connections' key, variables under 'variables'",
		},
		"metastore": {
			"Requires: driver (postgres or mysql), dsn",
			"Reads the connection and variable tables directly",
		},
		"keyring": {
			"Optional: service (defaults to skein)",
			"Uses the OS keychain via the desktop session",
		},
		"aws.secretsmanager": {
			"Optional: region, connections_prefix, variables_prefix, sep",
			"Authentication via the standard AWS credential chain",
		},
		"aws.ssm": {
			"Optional: region, connections_prefix, variables_prefix",
			"Parameters are fetched with decryption enabled",
		},
		"gcp.secretmanager": {
			"Requires: project_id",
			"Authentication via Application Default Credentials",
		},
		"azure.keyvault": {
			"Requires: vault_url",
			"Authentication via DefaultAzureCredential",
		},
	}
	if d, ok := details[backendType]; ok {
		return d
	}
	return []string{"No details available"}
}
