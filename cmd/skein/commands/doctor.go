package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/resolve"
	"github.com/skeinworks/skein/pkg/backend"
)

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var (
		verbose bool
		connID  string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check backend connectivity and configuration",
		Long: `Verify that backends are properly configured and accessible.

This command checks:
- Configuration file validity
- Backend authentication and connectivity
- The backend search order

Use --conn to also resolve a specific connection id end to end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking skein configuration...")
			if err := cfg.Load(); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Logger.Info("✓ Configuration loaded successfully")

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				cfg.Logger.Error("Backend registration error: %v", err)
				return fmt.Errorf("failed to register backends: %w", err)
			}

			ctx := context.Background()
			results := make([]BackendHealth, 0, len(cfg.Definition.Backends))

			for _, name := range sortedBackendNames(cfg) {
				bc := cfg.Definition.Backends[name]
				health := BackendHealth{
					Name:   name,
					Type:   bc.Type,
					Status: "checking",
				}

				b, ok := resolver.Backend(name)
				if !ok {
					health.Status = "error"
					health.Error = "backend not registered"
					results = append(results, health)
					continue
				}

				health.Capabilities = b.Capabilities()
				if err := resolver.ValidateBackend(ctx, name); err != nil {
					health.Status = "error"
					health.Error = err.Error()
				} else {
					health.Status = "healthy"
					health.Message = "Backend is ready"
				}

				results = append(results, health)
			}

			displayHealthResults(results, verbose)

			if connID != "" {
				cfg.Logger.Info("\nResolving connection: %s", connID)

				plan := resolver.Plan([]string{connID})
				for _, err := range plan.Errors {
					return fmt.Errorf("connection check failed: %w", err)
				}
				for _, lookup := range plan.Lookups {
					fmt.Printf("Search chain for %s: %s\n", lookup.ConnID, strings.Join(lookup.Chain, " -> "))
				}

				value, source, err := resolver.GetConnValue(ctx, connID)
				if err != nil {
					return fmt.Errorf("connection check failed: %w", err)
				}
				// Only the backend and the length, never the value.
				cfg.Logger.Info("✓ Resolved '%s' from backend '%s' (%d bytes)", connID, source, len(value))
			}

			healthy := 0
			for _, result := range results {
				if result.Status == "healthy" {
					healthy++
				}
			}

			fmt.Printf("\nSummary: %d/%d backends healthy\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some backends are not healthy")
			}

			cfg.Logger.Info("✓ All systems operational!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show detailed backend information")
	cmd.Flags().StringVar(&connID, "conn", "", "Also resolve this connection id end to end")

	return cmd
}

// BackendHealth represents the health status of a backend.
type BackendHealth struct {
	Name         string
	Type         string
	Status       string // healthy, error, checking
	Error        string
	Message      string
	Capabilities backend.Capabilities
}

// displayHealthResults shows backend health in a formatted table.
func displayHealthResults(results []BackendHealth, verbose bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "BACKEND\tTYPE\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-------\t----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		message := result.Message
		if result.Error != "" {
			message = result.Error
		}

		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "? " + status
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			result.Name, result.Type, status, message)
	}

	_ = w.Flush()

	if verbose {
		for _, result := range results {
			if result.Status != "healthy" {
				continue
			}
			fmt.Printf("\n%s capabilities:\n", result.Name)
			caps := result.Capabilities
			fmt.Printf("  • Variables: %t\n", caps.SupportsVariables)
			fmt.Printf("  • Listing: %t\n", caps.SupportsListing)
			fmt.Printf("  • Auth required: %t\n", caps.RequiresAuth)
			if len(caps.AuthMethods) > 0 {
				fmt.Printf("  • Auth methods: %v\n", caps.AuthMethods)
			}
		}
	}
}
