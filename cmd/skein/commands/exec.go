package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/config"
	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/execenv"
	"github.com/skeinworks/skein/internal/resolve"
	"github.com/skeinworks/skein/internal/secure"
)

func NewExecCommand(cfg *config.Config) *cobra.Command {
	var (
		connIDs    []string
		varKeys    []string
		printVars  bool
		preserve   bool
		workingDir string
		timeout    int
	)

	cmd := &cobra.Command{
		Use:   "exec --conn <id> [--conn <id>...] -- <command> [args...]",
		Short: "Execute a command with resolved secrets in its environment",
		Long: `Execute a command with connections and variables resolved from the
configured backends. Each connection id is injected as SKEIN_CONN_<ID>
holding the serialized connection value, and each variable as
SKEIN_VAR_<KEY>. Secrets are held in protected memory until handoff and
never written to disk.

The command must be separated from skein arguments with '--'.

Examples:
  skein exec --conn pg_default -- python etl.py
  skein exec --conn pg_default --conn s3_logs --var api_key -- make deploy
  skein exec --conn pg_default --print -- env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return skerrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: skein exec --conn <id> -- <command> [args...]",
				}
			}
			if len(connIDs) == 0 && len(varKeys) == 0 {
				return skerrors.UserError{
					Message:    "No connections or variables requested",
					Suggestion: "Use --conn <id> or --var <key> to select what to inject",
				}
			}

			if err := cfg.Load(); err != nil {
				return err
			}

			resolver := resolve.New(cfg)
			if err := registerBackends(resolver, cfg); err != nil {
				return skerrors.UserError{
					Message:    "Failed to register backends",
					Details:    err.Error(),
					Suggestion: "Check backend configuration in skein.yaml. Run 'skein doctor' to diagnose",
					Err:        err,
				}
			}

			ctx := context.Background()

			// Resolved values go straight into protected memory and stay
			// there until the environment is assembled.
			cache := secure.NewCache()
			defer cache.Clear()

			resolved, err := resolver.ResolveAll(ctx, connIDs)
			if err != nil {
				return err
			}
			for _, id := range connIDs {
				cache.Put(execenv.ConnEnvName(id), resolved[id].Value)
			}

			for _, key := range varKeys {
				value, source, err := resolver.GetVariable(ctx, key)
				if err != nil {
					return err
				}
				cfg.Logger.Debug("Resolved variable '%s' from backend '%s'", key, source)
				cache.Put(execenv.VarEnvName(key), value)
			}

			cfg.Logger.Info("Resolved %d secret(s) for injection", cache.Len())

			environment := make(map[string]string, cache.Len())
			for _, id := range connIDs {
				name := execenv.ConnEnvName(id)
				value, ok := cache.Get(name)
				if !ok {
					return fmt.Errorf("resolved value for '%s' is gone", id)
				}
				environment[name] = value
			}
			for _, key := range varKeys {
				name := execenv.VarEnvName(key)
				value, ok := cache.Get(name)
				if !ok {
					return fmt.Errorf("resolved value for '%s' is gone", key)
				}
				environment[name] = value
			}

			executor := execenv.New(cfg.Logger)
			return executor.Exec(ctx, execenv.ExecOptions{
				Command:          args,
				Environment:      environment,
				PreserveExisting: preserve,
				PrintVars:        printVars,
				WorkingDir:       workingDir,
				Timeout:          timeout,
			})
		},
	}

	cmd.Flags().StringArrayVar(&connIDs, "conn", nil, "Connection id to inject (repeatable)")
	cmd.Flags().StringArrayVar(&varKeys, "var", nil, "Variable key to inject (repeatable)")
	cmd.Flags().BoolVar(&printVars, "print", false, "Print injected variable names with masked values")
	cmd.Flags().BoolVar(&preserve, "preserve-existing", false, "Existing environment variables win over injected values")
	cmd.Flags().StringVar(&workingDir, "dir", "", "Working directory for the command")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Command timeout in seconds (0 for none)")

	return cmd
}

// injectedNames returns the sorted environment variable names a set of
// conn ids and variable keys maps to.
func injectedNames(connIDs, varKeys []string) []string {
	names := make([]string, 0, len(connIDs)+len(varKeys))
	for _, id := range connIDs {
		names = append(names, execenv.ConnEnvName(id))
	}
	for _, key := range varKeys {
		names = append(names, execenv.VarEnvName(key))
	}
	sort.Strings(names)
	return names
}
